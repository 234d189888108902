// Package cep resolves Brazilian postal codes into street addresses through
// the ViaCEP public API.
package cep

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/imobia/atende/internal/validate"
)

// Status classifies the outcome of a lookup so callers can tell "no such
// code" apart from "service down" and react differently.
type Status int

const (
	Found Status = iota
	NotFound
	Unavailable
)

// Address is the subset of the ViaCEP payload the intake flow stores.
type Address struct {
	Street   string
	District string
	City     string
	Region   string
}

// Result pairs the lookup status with the address when Found.
type Result struct {
	Status  Status
	Address Address
}

// Opts configures a Client.
type Opts struct {
	BaseURL string        // default https://viacep.com.br
	Timeout time.Duration // default 10s
}

// Client queries ViaCEP. The zero value is not usable; construct with New.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(opts Opts) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://viacep.com.br"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: opts.BaseURL,
		http:    &http.Client{Timeout: opts.Timeout},
	}
}

type viaCEPPayload struct {
	CEP      string `json:"cep"`
	Street   string `json:"logradouro"`
	District string `json:"bairro"`
	City     string `json:"localidade"`
	Region   string `json:"uf"`
	Erro     bool   `json:"erro"`
}

// Lookup resolves raw (with or without punctuation) into an address. A
// malformed code returns validate.ErrInvalidPostalCode; transport and
// decoding failures come back as Unavailable with a nil error so the caller
// can fall through to manual entry.
func (c *Client) Lookup(ctx context.Context, raw string) (Result, error) {
	code, err := validate.PostalCode(raw)
	if err != nil {
		return Result{}, err
	}

	url := fmt.Sprintf("%s/ws/%s/json/", c.baseURL, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("cep: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Status: Unavailable}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Status: Unavailable}, nil
	}

	var payload viaCEPPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{Status: Unavailable}, nil
	}
	if payload.Erro {
		return Result{Status: NotFound}, nil
	}

	return Result{
		Status: Found,
		Address: Address{
			Street:   payload.Street,
			District: payload.District,
			City:     payload.City,
			Region:   payload.Region,
		},
	}, nil
}
