package library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Client talks to the media server's admin REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

var _ Library = (*Client)(nil)

func (c *Client) do(ctx context.Context, method, path string, body, dst interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("library request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("library %s %s failed: %s - %s", method, path, resp.Status, string(respBody))
	}

	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) ItemByID(ctx context.Context, id uuid.UUID) (*Entity, error) {
	var e Entity
	if err := c.do(ctx, http.MethodGet, "/api/items/"+id.String(), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

type itemQuery struct {
	IDs        []uuid.UUID `json:"ids,omitempty"`
	RefIDs     []string    `json:"provider_ids,omitempty"`
	Provider   string      `json:"provider,omitempty"`
	Kinds      []Kind      `json:"kinds,omitempty"`
	SortPrefix string      `json:"sort_prefix,omitempty"`
}

type itemQueryResult struct {
	Items []Entity `json:"items"`
}

func (c *Client) ItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]Entity, error) {
	var res itemQueryResult
	if err := c.do(ctx, http.MethodPost, "/api/items/query", itemQuery{IDs: ids}, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (c *Client) ItemsByRefIDs(ctx context.Context, refIDs []string, kinds []Kind) ([]Entity, error) {
	q := itemQuery{RefIDs: refIDs, Provider: RefProvider, Kinds: kinds}
	var res itemQueryResult
	if err := c.do(ctx, http.MethodPost, "/api/items/query", q, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (c *Client) ItemsBySortPrefix(ctx context.Context, prefix string) ([]Entity, error) {
	var res itemQueryResult
	if err := c.do(ctx, http.MethodPost, "/api/items/query", itemQuery{SortPrefix: prefix}, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (c *Client) Collections(ctx context.Context) ([]Entity, error) {
	var res itemQueryResult
	if err := c.do(ctx, http.MethodGet, "/api/collections", nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (c *Client) CollectionItems(ctx context.Context, collectionID uuid.UUID) ([]Entity, error) {
	var res itemQueryResult
	if err := c.do(ctx, http.MethodGet, "/api/collections/"+collectionID.String()+"/items", nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (c *Client) CollectionsContaining(ctx context.Context, itemID uuid.UUID) ([]Entity, error) {
	var res itemQueryResult
	if err := c.do(ctx, http.MethodGet, "/api/items/"+itemID.String()+"/collections", nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (c *Client) CreateCollection(ctx context.Context, name string, itemIDs []uuid.UUID) (*Entity, error) {
	body := struct {
		Name    string      `json:"name"`
		ItemIDs []uuid.UUID `json:"item_ids"`
	}{Name: name, ItemIDs: itemIDs}

	var e Entity
	if err := c.do(ctx, http.MethodPost, "/api/collections", body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

type membershipChange struct {
	ItemIDs []uuid.UUID `json:"item_ids"`
}

func (c *Client) AddToCollection(ctx context.Context, collectionID uuid.UUID, itemIDs []uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/api/collections/"+collectionID.String()+"/items",
		membershipChange{ItemIDs: itemIDs}, nil)
}

func (c *Client) RemoveFromCollection(ctx context.Context, collectionID uuid.UUID, itemIDs []uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/collections/"+collectionID.String()+"/items",
		membershipChange{ItemIDs: itemIDs}, nil)
}

func (c *Client) UpdateMetadata(ctx context.Context, id uuid.UUID, upd MetadataUpdate) error {
	return c.do(ctx, http.MethodPatch, "/api/items/"+id.String(), upd, nil)
}

func (c *Client) DeleteItem(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/items/"+id.String(), nil, nil)
}

func (c *Client) Folders(ctx context.Context) ([]Folder, error) {
	var res struct {
		Folders []Folder `json:"folders"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/libraries", nil, &res); err != nil {
		return nil, err
	}
	return res.Folders, nil
}

func (c *Client) RemovePrimaryImage(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/items/"+id.String()+"/images/primary", nil, nil)
}

func (c *Client) SetPrimaryImageURL(ctx context.Context, id uuid.UUID, imageURL string) error {
	body := struct {
		URL string `json:"url"`
	}{URL: imageURL}
	return c.do(ctx, http.MethodPost, "/api/items/"+id.String()+"/images/primary", body, nil)
}

func (c *Client) RefreshMetadata(ctx context.Context, id uuid.UUID, replaceImages bool) error {
	path := "/api/items/" + id.String() + "/refresh"
	if replaceImages {
		path += "?" + url.Values{"replace_images": {"true"}}.Encode()
	}
	return c.do(ctx, http.MethodPost, path, nil, nil)
}
