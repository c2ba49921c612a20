package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RESTEngine implements Engine against Milvus's v2 HTTP REST API.
type RESTEngine struct {
	baseURL    string
	authHeader string
	dbName     string
	httpClient *http.Client
}

// NewRESTEngine creates a RESTEngine bound to a single URI/user/db triple.
// user and password are sent as a "Bearer user:password" Authorization
// header, per Milvus's REST auth scheme.
func NewRESTEngine(uri, user, password, dbName string) *RESTEngine {
	return &RESTEngine{
		baseURL:    strings.TrimSuffix(uri, "/"),
		authHeader: "Bearer " + user + ":" + password,
		dbName:     dbName,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *RESTEngine) do(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", e.authHeader)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}

	if resp.StatusCode >= 300 || (envelope.Code != 0 && envelope.Code != 200) {
		if strings.Contains(strings.ToLower(envelope.Message), "already exist") {
			return fmt.Errorf("%s: %w", envelope.Message, ErrAlreadyExists)
		}
		if strings.Contains(strings.ToLower(envelope.Message), "not found") ||
			strings.Contains(strings.ToLower(envelope.Message), "not exist") {
			return fmt.Errorf("%s: %w", envelope.Message, ErrNotFound)
		}
		return fmt.Errorf("milvus error (code %d): %s", envelope.Code, envelope.Message)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decoding data from %s: %w", path, err)
		}
	}

	return nil
}

// Ping verifies connectivity by listing collections.
func (e *RESTEngine) Ping(ctx context.Context) error {
	return e.do(ctx, "/v2/vectordb/collections/list", map[string]any{"dbName": e.dbName}, nil)
}

// CreateDatabase creates a tenant's dedicated database.
func (e *RESTEngine) CreateDatabase(ctx context.Context, name string) error {
	err := e.do(ctx, "/v2/vectordb/databases/create", map[string]any{"dbName": name}, nil)
	if errors.Is(err, ErrAlreadyExists) {
		return nil
	}
	return err
}

// CreateRole creates a role with no privileges attached.
func (e *RESTEngine) CreateRole(ctx context.Context, roleName string) error {
	err := e.do(ctx, "/v2/vectordb/roles/create", map[string]any{"roleName": roleName}, nil)
	if errors.Is(err, ErrAlreadyExists) {
		return nil
	}
	return err
}

// GrantPrivilege attaches a privilege on an object to a role.
func (e *RESTEngine) GrantPrivilege(ctx context.Context, roleName, object, privilege, dbName string) error {
	return e.do(ctx, "/v2/vectordb/roles/grant_privilege", map[string]any{
		"roleName":  roleName,
		"objectType": "Collection",
		"objectName": object,
		"privilege":  privilege,
		"dbName":     dbName,
	}, nil)
}

// CreateUser creates a login user with the given password.
func (e *RESTEngine) CreateUser(ctx context.Context, username, password string) error {
	err := e.do(ctx, "/v2/vectordb/users/create", map[string]any{
		"userName": username,
		"password": password,
	}, nil)
	if errors.Is(err, ErrAlreadyExists) {
		return e.do(ctx, "/v2/vectordb/users/update_password", map[string]any{
			"userName":    username,
			"newPassword": password,
		}, nil)
	}
	return err
}

// GrantRole attaches a role to a user.
func (e *RESTEngine) GrantRole(ctx context.Context, username, roleName string) error {
	return e.do(ctx, "/v2/vectordb/users/grant_role", map[string]any{
		"userName": username,
		"roleName": roleName,
	}, nil)
}

// HasCollection reports whether a collection exists.
func (e *RESTEngine) HasCollection(ctx context.Context, name string) (bool, error) {
	var out struct {
		Has bool `json:"has"`
	}
	err := e.do(ctx, "/v2/vectordb/collections/has", map[string]any{
		"dbName":         e.dbName,
		"collectionName": name,
	}, &out)
	if err != nil {
		return false, err
	}
	return out.Has, nil
}

// DescribeCollection returns the schema of an existing collection.
func (e *RESTEngine) DescribeCollection(ctx context.Context, name string) (*CollectionSchema, error) {
	var out struct {
		CollectionName string `json:"collectionName"`
		Fields         []struct {
			Name         string `json:"name"`
			Type         string `json:"type"`
			PrimaryKey   bool   `json:"primaryKey"`
			AutoID       bool   `json:"autoId"`
			ElementTypeParams struct {
				Dim       int `json:"dim,string"`
				MaxLength int `json:"max_length,string"`
			} `json:"params"`
		} `json:"fields"`
	}

	if err := e.do(ctx, "/v2/vectordb/collections/describe", map[string]any{
		"dbName":         e.dbName,
		"collectionName": name,
	}, &out); err != nil {
		return nil, err
	}

	schema := &CollectionSchema{Name: out.CollectionName}
	for _, f := range out.Fields {
		schema.Fields = append(schema.Fields, FieldSchema{
			Name:         f.Name,
			DataType:     f.Type,
			IsPrimaryKey: f.PrimaryKey,
			AutoID:       f.AutoID,
			Dimension:    f.ElementTypeParams.Dim,
			MaxLength:    f.ElementTypeParams.MaxLength,
		})
	}
	return schema, nil
}

// CreateCollection creates a collection from the given schema.
func (e *RESTEngine) CreateCollection(ctx context.Context, schema CollectionSchema) error {
	fields := make([]map[string]any, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		field := map[string]any{
			"fieldName": f.Name,
			"dataType":  f.DataType,
			"isPrimary": f.IsPrimaryKey,
			"autoID":    f.AutoID,
		}
		if f.Dimension > 0 {
			field["elementTypeParams"] = map[string]any{"dim": f.Dimension}
		}
		if f.MaxLength > 0 {
			field["elementTypeParams"] = map[string]any{"max_length": f.MaxLength}
		}
		fields = append(fields, field)
	}

	err := e.do(ctx, "/v2/vectordb/collections/create", map[string]any{
		"dbName":         e.dbName,
		"collectionName": schema.Name,
		"schema": map[string]any{
			"fields": fields,
		},
	}, nil)
	if err != nil {
		return err
	}
	return nil
}

// CreateIndex builds an index on a vector field.
func (e *RESTEngine) CreateIndex(ctx context.Context, collection string, params IndexParams) error {
	idx := map[string]any{
		"fieldName":  params.FieldName,
		"indexType":  params.IndexType,
		"metricType": params.MetricType,
	}
	if params.Nlist > 0 {
		idx["params"] = map[string]any{"nlist": params.Nlist}
	}

	return e.do(ctx, "/v2/vectordb/indexes/create", map[string]any{
		"dbName":         e.dbName,
		"collectionName": collection,
		"indexParams":    []map[string]any{idx},
	}, nil)
}

// LoadCollection loads a collection into memory for search.
func (e *RESTEngine) LoadCollection(ctx context.Context, collection string) error {
	return e.do(ctx, "/v2/vectordb/collections/load", map[string]any{
		"dbName":         e.dbName,
		"collectionName": collection,
	}, nil)
}

// Insert upserts rows into a collection.
func (e *RESTEngine) Insert(ctx context.Context, collection string, rows []Row) error {
	return e.do(ctx, "/v2/vectordb/entities/upsert", map[string]any{
		"dbName":         e.dbName,
		"collectionName": collection,
		"data":           rows,
	}, nil)
}

// Flush forces buffered segments to be persisted.
func (e *RESTEngine) Flush(ctx context.Context, collection string) error {
	return e.do(ctx, "/v2/vectordb/collections/flush", map[string]any{
		"dbName":         e.dbName,
		"collectionName": collection,
	}, nil)
}

// Search executes a single ANN search.
func (e *RESTEngine) Search(ctx context.Context, req SearchRequest) ([]SearchHit, error) {
	var data any
	if req.SparseQuery != nil {
		data = []any{req.SparseQuery}
	} else {
		data = []any{req.Vector}
	}

	body := map[string]any{
		"dbName":         e.dbName,
		"collectionName": req.Collection,
		"annsField":      req.AnnsField,
		"data":           data,
		"limit":          req.TopK,
		"outputFields":   req.OutputFields,
	}
	if req.Filter != "" {
		body["filter"] = req.Filter
	}
	searchParams := map[string]any{"metricType": req.MetricType}
	if req.DropRatioBuild > 0 {
		searchParams["params"] = map[string]any{"drop_ratio_search": req.DropRatioBuild}
	}
	body["searchParams"] = searchParams

	var raw []map[string]any
	if err := e.do(ctx, "/v2/vectordb/entities/search", body, &raw); err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(raw))
	for _, r := range raw {
		hit := SearchHit{Fields: map[string]any{}}
		for k, v := range r {
			switch k {
			case "id":
				hit.ID = v
			case "distance", "score":
				if f, ok := v.(float64); ok {
					hit.Score = float32(f)
				}
			default:
				hit.Fields[k] = v
			}
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// Close releases the underlying HTTP transport's idle connections.
func (e *RESTEngine) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}
