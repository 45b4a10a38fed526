package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type cli struct {
	api string
	out io.Writer
}

type apiError struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *cli) client() *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(c.api, "/")).
		SetTimeout(5*time.Minute).
		SetHeader("Content-Type", "application/json")
}

// call sends a request and returns the raw body of a 2xx response.
func (c *cli) call(method, path string, query map[string]string, body any) ([]byte, error) {
	req := c.client().R()
	for k, v := range query {
		if v != "" {
			req.SetQueryParam(k, v)
		}
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		var e apiError
		if json.Unmarshal(resp.Body(), &e) == nil && e.Message != "" {
			return nil, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode(), e.Message)
		}
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode())
	}
	return resp.Body(), nil
}

// print writes data to the output, indenting JSON bodies.
func (c *cli) print(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = c.out.Write(data)
		return err
	}
	buf.WriteByte('\n')
	_, err := c.out.Write(buf.Bytes())
	return err
}

func (c *cli) get(path string, query map[string]string) error {
	data, err := c.call("GET", path, query, nil)
	if err != nil {
		return err
	}
	return c.print(data)
}
