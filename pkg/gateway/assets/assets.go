// Package assets is an in-memory store for generated media (narration audio,
// edited images). Entries expire after the configured TTL; URLs handed to
// clients point back at the gateway's /v1/assets route.
package assets

import (
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

type Asset struct {
	Data []byte
	MIME string
}

type Store struct {
	cache *gocache.Cache
}

func NewStore(ttl time.Duration) *Store {
	return &Store{cache: gocache.New(ttl, ttl)}
}

// Put stores the blob and returns the gateway-relative URL clients fetch it
// from. The returned ID is embedded in the URL.
func (s *Store) Put(data []byte, mime string) string {
	id := uuid.NewString()
	s.cache.SetDefault(id, Asset{Data: data, MIME: mime})
	return "/v1/assets/" + id
}

func (s *Store) Get(id string) (Asset, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return Asset{}, false
	}
	a, ok := v.(Asset)
	return a, ok
}

func (s *Store) Len() int {
	return s.cache.ItemCount()
}
