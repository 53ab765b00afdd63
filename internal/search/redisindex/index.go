// Package redisindex stores search documents in Redis.
//
// Layout, under a configurable prefix:
//
//	<prefix>doc:<voter_id>    JSON document
//	<prefix>terms:<voter_id>  set of the document's terms
//	<prefix>term:<term>       set of voter ids carrying the term
//	<prefix>versions          hash voter_id -> version
//
// Writes run in MULTI/EXEC under WATCH on the document key, so concurrent writers of the
// same voter retry instead of interleaving.
package redisindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"

	"enrollment/internal/search"
)

const (
	defaultPrefix = "enrollment:search:"
	maxTxRetries  = 5
)

// Index implements search.Index on Redis.
type Index struct {
	client redis.UniversalClient
	prefix string
}

// Option configures the Index.
type Option func(*Index)

// WithPrefix namespaces every key. Used by tests to isolate runs.
func WithPrefix(prefix string) Option {
	return func(i *Index) {
		i.prefix = prefix
	}
}

// New constructs a Redis-backed search index.
func New(client redis.UniversalClient, opts ...Option) *Index {
	i := &Index{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

var _ search.Index = (*Index)(nil)

// Put writes doc unless the stored version is newer.
func (i *Index) Put(ctx context.Context, doc search.Document) (bool, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode search document: %w", err)
	}
	terms := search.Terms(doc)
	version := doc.Version()

	written := false
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, i.versionsKey(), doc.VoterID).Int64()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		case current > version:
			written = false
			return nil
		}
		old, err := tx.SMembers(ctx, i.termsKey(doc.VoterID)).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, term := range old {
				if _, ok := slices.BinarySearch(terms, term); !ok {
					pipe.SRem(ctx, i.termKey(term), doc.VoterID)
				}
			}
			pipe.Del(ctx, i.termsKey(doc.VoterID))
			if len(terms) > 0 {
				pipe.SAdd(ctx, i.termsKey(doc.VoterID), toArgs(terms)...)
			}
			for _, term := range terms {
				pipe.SAdd(ctx, i.termKey(term), doc.VoterID)
			}
			pipe.Set(ctx, i.docKey(doc.VoterID), payload, 0)
			pipe.HSet(ctx, i.versionsKey(), doc.VoterID, version)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}

	if err := i.watch(ctx, txf, i.docKey(doc.VoterID)); err != nil {
		return false, fmt.Errorf("put search document %s: %w", doc.VoterID, err)
	}
	return written, nil
}

// PutBatch writes each document under its own version guard.
func (i *Index) PutBatch(ctx context.Context, docs []search.Document) error {
	for _, doc := range docs {
		if _, err := i.Put(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a document and its term memberships.
func (i *Index) Delete(ctx context.Context, voterID string) error {
	txf := func(tx *redis.Tx) error {
		old, err := tx.SMembers(ctx, i.termsKey(voterID)).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, term := range old {
				pipe.SRem(ctx, i.termKey(term), voterID)
			}
			pipe.Del(ctx, i.termsKey(voterID), i.docKey(voterID))
			pipe.HDel(ctx, i.versionsKey(), voterID)
			return nil
		})
		return err
	}
	if err := i.watch(ctx, txf, i.docKey(voterID)); err != nil {
		return fmt.Errorf("delete search document %s: %w", voterID, err)
	}
	return nil
}

// Versions returns the stored versions of the indexed ids.
func (i *Index) Versions(ctx context.Context, voterIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(voterIDs))
	if len(voterIDs) == 0 {
		return out, nil
	}
	values, err := i.client.HMGet(ctx, i.versionsKey(), voterIDs...).Result()
	if err != nil {
		return nil, fmt.Errorf("read search versions: %w", err)
	}
	for n, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		version, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse search version of %s: %w", voterIDs[n], err)
		}
		out[voterIDs[n]] = version
	}
	return out, nil
}

// Query intersects the term sets of q and loads the requested page.
func (i *Index) Query(ctx context.Context, q search.Query) (search.Result, error) {
	terms := search.QueryTerms(q)
	res := search.Result{Documents: []search.Document{}}
	if len(terms) == 0 {
		return res, nil
	}
	keys := make([]string, len(terms))
	for n, term := range terms {
		keys[n] = i.termKey(term)
	}
	ids, err := i.client.SInter(ctx, keys...).Result()
	if err != nil {
		return search.Result{}, fmt.Errorf("query search terms: %w", err)
	}
	slices.Sort(ids)
	res.Total = len(ids)

	ids = pageOf(ids, q.Offset, q.Limit)
	if len(ids) == 0 {
		return res, nil
	}
	docKeys := make([]string, len(ids))
	for n, voterID := range ids {
		docKeys[n] = i.docKey(voterID)
	}
	raws, err := i.client.MGet(ctx, docKeys...).Result()
	if err != nil {
		return search.Result{}, fmt.Errorf("load search documents: %w", err)
	}
	for _, raw := range raws {
		payload, ok := raw.(string)
		if !ok {
			// removed between SINTER and MGET
			continue
		}
		var doc search.Document
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return search.Result{}, fmt.Errorf("decode search document: %w", err)
		}
		res.Documents = append(res.Documents, doc)
	}
	return res, nil
}

// ScanIDs walks the versions hash with HSCAN. Ids may repeat across pages.
func (i *Index) ScanIDs(ctx context.Context, cursor uint64, count int) ([]string, uint64, error) {
	kv, next, err := i.client.HScan(ctx, i.versionsKey(), cursor, "", int64(count)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("scan search ids: %w", err)
	}
	ids := make([]string, 0, len(kv)/2)
	for n := 0; n+1 < len(kv); n += 2 {
		ids = append(ids, kv[n])
	}
	return ids, next, nil
}

// Get loads one document.
func (i *Index) Get(ctx context.Context, voterID string) (search.Document, bool, error) {
	payload, err := i.client.Get(ctx, i.docKey(voterID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return search.Document{}, false, nil
	}
	if err != nil {
		return search.Document{}, false, fmt.Errorf("get search document: %w", err)
	}
	var doc search.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return search.Document{}, false, fmt.Errorf("decode search document: %w", err)
	}
	return doc, true, nil
}

// Health pings the Redis server.
func (i *Index) Health(ctx context.Context) error {
	return i.client.Ping(ctx).Err()
}

func (i *Index) watch(ctx context.Context, fn func(*redis.Tx) error, key string) error {
	var err error
	for range maxTxRetries {
		err = i.client.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (i *Index) docKey(voterID string) string   { return i.prefix + "doc:" + voterID }
func (i *Index) termsKey(voterID string) string { return i.prefix + "terms:" + voterID }
func (i *Index) termKey(term string) string     { return i.prefix + "term:" + term }
func (i *Index) versionsKey() string            { return i.prefix + "versions" }

func toArgs(values []string) []any {
	out := make([]any, len(values))
	for n, v := range values {
		out[n] = v
	}
	return out
}

func pageOf(ids []string, offset, limit int) []string {
	if offset >= len(ids) {
		return nil
	}
	end := len(ids)
	if limit > 0 {
		end = min(offset+limit, len(ids))
	}
	return ids[offset:end]
}
