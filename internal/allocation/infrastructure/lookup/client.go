package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	allocation "payroll-cloud/internal/allocation/domain"
)

// ErrLoanNotFound indicates the loan reference is unknown to the loan service.
var ErrLoanNotFound = errors.New("lookup: loan not found")

// ErrPolicyNotFound indicates the branch has no contribution policy configured.
var ErrPolicyNotFound = errors.New("lookup: policy not found")

// Client resolves loan schedules and branch contribution policies from the
// core banking lookup API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient constructs a lookup client.
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("lookup: empty base url")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type dueResponse struct {
	Capital  string `json:"capital_due"`
	Interest string `json:"interest_due"`
	VAT      string `json:"vat_due"`
}

// DueAmounts returns the capital, interest and VAT due on a member's loan.
func (c *Client) DueAmounts(ctx context.Context, matricule, loanRef string) (allocation.DueAmounts, error) {
	if matricule == "" || loanRef == "" {
		return allocation.DueAmounts{}, errors.New("lookup: empty matricule or loan ref")
	}
	path := fmt.Sprintf("/api/loans/%s/due?loan_ref=%s", url.PathEscape(matricule), url.QueryEscape(loanRef))
	var resp dueResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return allocation.DueAmounts{}, ErrLoanNotFound
		}
		return allocation.DueAmounts{}, err
	}

	capital, err := parseAmount(resp.Capital)
	if err != nil {
		return allocation.DueAmounts{}, fmt.Errorf("lookup: capital due: %w", err)
	}
	interest, err := parseAmount(resp.Interest)
	if err != nil {
		return allocation.DueAmounts{}, fmt.Errorf("lookup: interest due: %w", err)
	}
	vat, err := parseAmount(resp.VAT)
	if err != nil {
		return allocation.DueAmounts{}, fmt.Errorf("lookup: vat due: %w", err)
	}
	return allocation.DueAmounts{Capital: capital, Interest: interest, VAT: vat}, nil
}

type policyResponse struct {
	SavingsRate string `json:"savings_rate"`
	ShareAmount string `json:"share_amount"`
}

// Policy returns the branch contribution policy.
func (c *Client) Policy(ctx context.Context, branchID string) (allocation.ContributionPolicy, error) {
	if branchID == "" {
		return allocation.ContributionPolicy{}, errors.New("lookup: empty branch id")
	}
	var resp policyResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/branches/"+url.PathEscape(branchID)+"/contribution-policy", nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return allocation.ContributionPolicy{}, ErrPolicyNotFound
		}
		return allocation.ContributionPolicy{}, err
	}

	rate, err := parseAmount(resp.SavingsRate)
	if err != nil {
		return allocation.ContributionPolicy{}, fmt.Errorf("lookup: savings rate: %w", err)
	}
	share, err := parseAmount(resp.ShareAmount)
	if err != nil {
		return allocation.ContributionPolicy{}, fmt.Errorf("lookup: share amount: %w", err)
	}
	return allocation.ContributionPolicy{SavingsRate: rate, ShareAmount: share}, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if value.IsNegative() {
		return decimal.Decimal{}, errors.New("negative amount")
	}
	return value, nil
}

var errNotFound = errors.New("lookup: not found")

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
	if resp.StatusCode >= 300 {
		return fmt.Errorf("lookup: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
