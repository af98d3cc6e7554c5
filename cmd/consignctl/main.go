// consignctl drives the consignment workflow over the HTTP API. It is
// meant for staff scripting and smoke tests against a running service.
//
//	consignctl submit --file vehicle.json
//	consignctl approve CSG-... --notes "inspected"
//	consignctl reject CSG-... --reason "salvage title"
//	consignctl promote CSG-...
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const defaultAPIURL = "http://localhost:8081/api"

// APIError is a non-2xx response from the service.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, strings.TrimSpace(e.Body))
}

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	}).Debug("API call")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(payload)}
	}
	return payload, nil
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.WithError(err).Error("consignctl failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	flags := pflag.NewFlagSet("consignctl", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.StringVar(&apiURL, "api", apiURL, "API base URL")
	token := flags.String("token", os.Getenv("CONSIGNCTL_TOKEN"), "bearer token")
	timeout := flags.Duration("timeout", 10*time.Second, "per-request timeout")
	verbose := flags.BoolP("verbose", "v", false, "log each API call")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	rest := flags.Args()
	if len(rest) == 0 {
		return errors.New("missing command: submit, get, list, approve, reject, complete, promote")
	}
	c := &client{baseURL: apiURL, token: *token, http: &http.Client{Timeout: *timeout}}

	payload, err := dispatch(ctx, c, rest[0], rest[1:], stdin)
	if err != nil {
		return err
	}
	return printJSON(stdout, payload)
}

func dispatch(ctx context.Context, c *client, command string, args []string, stdin io.Reader) ([]byte, error) {
	flags := pflag.NewFlagSet(command, pflag.ContinueOnError)

	switch command {
	case "submit":
		file := flags.StringP("file", "f", "-", "submission JSON file, - for stdin")
		if err := flags.Parse(args); err != nil {
			return nil, err
		}
		body, err := readSubmission(*file, stdin)
		if err != nil {
			return nil, err
		}
		return c.do(ctx, http.MethodPost, "/consignments", body)

	case "get":
		id, err := singleID(flags, args)
		if err != nil {
			return nil, err
		}
		return c.do(ctx, http.MethodGet, "/consignments/"+id, nil)

	case "list":
		status := flags.String("status", "", "filter by status")
		limit := flags.Int("limit", 0, "maximum records")
		if err := flags.Parse(args); err != nil {
			return nil, err
		}
		path := "/consignments"
		var query []string
		if *status != "" {
			query = append(query, "status="+*status)
		}
		if *limit > 0 {
			query = append(query, fmt.Sprintf("limit=%d", *limit))
		}
		if len(query) > 0 {
			path += "?" + strings.Join(query, "&")
		}
		return c.do(ctx, http.MethodGet, path, nil)

	case "approve", "complete":
		notes := flags.String("notes", "", "admin notes")
		id, err := singleID(flags, args)
		if err != nil {
			return nil, err
		}
		status := "approved"
		if command == "complete" {
			status = "completed"
		}
		return c.do(ctx, http.MethodPatch, "/consignments/"+id, transition(status, "", *notes))

	case "reject":
		reason := flags.String("reason", "", "rejection reason")
		notes := flags.String("notes", "", "admin notes")
		id, err := singleID(flags, args)
		if err != nil {
			return nil, err
		}
		return c.do(ctx, http.MethodPatch, "/consignments/"+id, transition("rejected", *reason, *notes))

	case "promote":
		id, err := singleID(flags, args)
		if err != nil {
			return nil, err
		}
		return c.do(ctx, http.MethodPost, "/vehicles/create-from-consignment",
			map[string]string{"consignmentId": id})

	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

func singleID(flags *pflag.FlagSet, args []string) (string, error) {
	if err := flags.Parse(args); err != nil {
		return "", err
	}
	if flags.NArg() != 1 {
		return "", fmt.Errorf("%s expects exactly one consignment id", flags.Name())
	}
	return flags.Arg(0), nil
}

func transition(status, reason, notes string) map[string]string {
	body := map[string]string{"status": status}
	if reason != "" {
		body["rejection_reason"] = reason
	}
	if notes != "" {
		body["admin_notes"] = notes
	}
	return body
}

func readSubmission(path string, stdin io.Reader) (json.RawMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read submission: %w", err)
	}
	if !json.Valid(data) {
		return nil, errors.New("submission is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func printJSON(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, payload, "", "  "); err != nil {
		_, err = w.Write(payload)
		return err
	}
	out.WriteByte('\n')
	_, err := w.Write(out.Bytes())
	return err
}
