package transport

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// PlainArg is the argument name of a non-form request body.
const PlainArg = "plain"

// Arg is one request argument.
type Arg struct {
	Name  string
	Value string
}

// Args are request arguments in arrival order.
type Args []Arg

// Get returns the value of the first argument called name, or "".
func (a Args) Get(name string) string {
	for _, arg := range a {
		if arg.Name == name {
			return arg.Value
		}
	}
	return ""
}

// Names returns the argument names in order.
func (a Args) Names() []string {
	names := make([]string, len(a))
	for i, arg := range a {
		names[i] = arg.Name
	}
	return names
}

// writeListing appends one " name: value\n" line per argument.
func (a Args) writeListing(b *strings.Builder) {
	for _, arg := range a {
		fmt.Fprintf(b, " %s: %s\n", arg.Name, arg.Value)
	}
}

// parseArgs reads query then body arguments. The body is limited to
// maxBody bytes.
func parseArgs(r *http.Request, maxBody int64) (Args, error) {
	args, err := parseEncoded(r.URL.RawQuery)
	if err != nil {
		return nil, err
	}

	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return args, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > maxBody {
		return nil, fmt.Errorf("body exceeds %d bytes", maxBody)
	}
	if len(body) == 0 {
		return args, nil
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/x-www-form-urlencoded" {
		return append(args, Arg{Name: PlainArg, Value: string(body)}), nil
	}

	form, err := parseEncoded(string(body))
	if err != nil {
		return nil, err
	}
	return append(args, form...), nil
}

// parseEncoded splits an urlencoded string keeping pair order, which
// url.ParseQuery does not.
func parseEncoded(s string) (Args, error) {
	var args Args
	for s != "" {
		var pair string
		pair, s, _ = strings.Cut(s, "&")
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("argument name %q: %w", k, err)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		args = append(args, Arg{Name: name, Value: value})
	}
	return args, nil
}
