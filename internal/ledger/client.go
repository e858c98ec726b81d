package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal REST client for the core banking ledger.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient constructs a ledger client.
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("ledger: empty base url")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type postResponse struct {
	TransactionRef string `json:"transaction_ref"`
	Error          string `json:"error"`
}

// Post submits a deduction posting and returns the ledger transaction reference.
// The poster is at-least-once; callers must guard by SourceID.
func (c *Client) Post(ctx context.Context, req PostRequest) (string, error) {
	if req.SourceID == "" || req.BranchID == "" {
		return "", errors.New("ledger: invalid post request")
	}
	if len(req.Lines) == 0 {
		return "", errors.New("ledger: empty post request")
	}
	var resp postResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/ledger/postings", req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		if strings.Contains(resp.Error, "accounting day") {
			return "", ErrAccountingDayClosed
		}
		return "", fmt.Errorf("ledger: %s", resp.Error)
	}
	if resp.TransactionRef == "" {
		return "", errors.New("ledger: missing transaction ref")
	}
	return resp.TransactionRef, nil
}

type dayResponse struct {
	Open bool `json:"open"`
}

// IsOpen reports whether the branch's accounting day is open for the date.
func (c *Client) IsOpen(ctx context.Context, branchID string, date time.Time) (bool, error) {
	if branchID == "" {
		return false, errors.New("ledger: empty branch id")
	}
	path := fmt.Sprintf("/api/ledger/accounting-days/%s?date=%s", branchID, date.Format("2006-01-02"))
	var resp dayResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Open, nil
}

type accountResponse struct {
	Exists bool `json:"exists"`
}

// Resolve checks that an external destination account exists.
func (c *Client) Resolve(ctx context.Context, accountNo string) (bool, error) {
	if accountNo == "" {
		return false, errors.New("ledger: empty account number")
	}
	var resp accountResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/ledger/external-accounts/"+accountNo, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return false, nil
		}
		return false, err
	}
	return resp.Exists, nil
}

var errNotFound = errors.New("ledger: not found")

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode == http.StatusConflict {
		return ErrAccountingDayClosed
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ledger: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
