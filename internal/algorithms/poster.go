package algorithms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"qaworkbench/internal/domain"
)

// ReportParameter carries the JSON validation report into report handlers.
const ReportParameter = "REPORT"

const defaultPostTimeout = 10 * time.Second

func reportParam(params map[string]any) (domain.ValidationReport, []byte, error) {
	var raw []byte
	switch v := params[ReportParameter].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case domain.ValidationReport:
		data, err := json.Marshal(v)
		if err != nil {
			return domain.ValidationReport{}, nil, err
		}
		raw = data
	default:
		return domain.ValidationReport{}, nil, fmt.Errorf("parameter %s: not a report", ReportParameter)
	}
	var rep domain.ValidationReport
	if err := json.Unmarshal(raw, &rep); err != nil {
		return domain.ValidationReport{}, nil, fmt.Errorf("parameter %s: %w", ReportParameter, err)
	}
	return rep, raw, nil
}

// ReportPoster posts the JSON report to a remote endpoint.
type ReportPoster struct {
	Client *http.Client
}

func (ReportPoster) Name() string        { return "reportposter" }
func (ReportPoster) DisplayName() string { return "Report poster" }

func (ReportPoster) Parameters() []Parameter {
	return []Parameter{
		{Name: ReportParameter, Description: "Input validation report", Kind: KindString, Default: "{}"},
		{Name: "INPUT_ENDPOINT", Description: "Remote URL endpoint", Kind: KindString},
		{Name: "INPUT_AUTH_TOKEN", Description: "Bearer token", Kind: KindString, Optional: true},
	}
}

func (p ReportPoster) Run(ctx context.Context, params map[string]any, log *zap.Logger) (map[string]any, error) {
	params, err := withDefaults(p, params)
	if err != nil {
		return nil, err
	}
	_, raw, err := reportParam(params)
	if err != nil {
		return nil, err
	}
	endpoint := stringParam(params, "INPUT_ENDPOINT")
	if u, err := url.Parse(endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint: %q", endpoint)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := stringParam(params, "INPUT_AUTH_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: defaultPostTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	accepted := res.StatusCode >= 200 && res.StatusCode < 300
	nopIfNil(log).Info("report posted",
		zap.String("endpoint", endpoint),
		zap.Int("status_code", res.StatusCode),
		zap.String("response", strings.TrimSpace(string(body))))
	return map[string]any{
		"OUTPUT_REQUEST_ACCEPTED":     accepted,
		"OUTPUT_RESPONSE_STATUS_CODE": res.StatusCode,
	}, nil
}
