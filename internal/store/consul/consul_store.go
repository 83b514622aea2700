package consul

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/consul/api"
)

// KV is the subset of *api.KV the store uses.
type KV interface {
	Get(key string, q *api.QueryOptions) (*api.KVPair, *api.QueryMeta, error)
	Put(p *api.KVPair, q *api.WriteOptions) (*api.WriteMeta, error)
	Keys(prefix, separator string, q *api.QueryOptions) ([]string, *api.QueryMeta, error)
}

// ConsulStore keeps every record as a JSON object under one Consul key.
type ConsulStore struct {
	kv KV
}

func NewConsulStore(kv KV) *ConsulStore {
	return &ConsulStore{kv: kv}
}

// Connect builds a store from a Consul agent address such as "127.0.0.1:8500".
func Connect(address string) (*ConsulStore, error) {
	cfg := api.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	return NewConsulStore(client.KV()), nil
}

// Consul keys never start with a slash.
func normalize(key string) string {
	return strings.TrimPrefix(key, "/")
}

func (s *ConsulStore) Get(ctx context.Context, key string) (map[string]string, error) {
	pair, _, err := s.kv.Get(normalize(key), (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	result := make(map[string]string)
	if pair == nil || len(pair.Value) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(pair.Value, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return result, nil
}

func (s *ConsulStore) Set(ctx context.Context, key string, values map[string]string) error {
	if values == nil {
		values = map[string]string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if _, err := s.kv.Put(&api.KVPair{Key: normalize(key), Value: raw}, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Keys only supports a trailing '*'; Consul lists keys by literal prefix.
func (s *ConsulStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	prefix := normalize(strings.TrimSuffix(pattern, "*"))
	keys, _, err := s.kv.Keys(prefix, "", (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list keys %s: %w", pattern, err)
	}
	return keys, nil
}

func (s *ConsulStore) Close() error {
	return nil
}
