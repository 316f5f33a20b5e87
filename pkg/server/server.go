// Package server is the coordinator's HTTP entrypoint: a single handler that
// dispatches S3-flavored requests to the object, multipart, and listing
// handlers, wrapped in an access-log/metrics middleware.
package server

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"

	"github.com/mkvstore/coordinator/pkg/codec"
	"github.com/mkvstore/coordinator/pkg/index"
	"github.com/mkvstore/coordinator/pkg/log"
	"github.com/mkvstore/coordinator/pkg/metrics"
	"github.com/mkvstore/coordinator/pkg/multipart"
	"github.com/mkvstore/coordinator/pkg/placement"
	"github.com/mkvstore/coordinator/pkg/replication"
	"github.com/mkvstore/coordinator/pkg/s3xml"
	"github.com/mkvstore/coordinator/pkg/types"
	"github.com/mkvstore/coordinator/pkg/volumeclient"
)

// maxListKeys bounds how many keys a single list/unlinked call will
// accumulate before giving up with 413, guarding against an unbounded scan.
const maxListKeys = 1_000_000

// Server is the coordinator's http.Handler.
type Server struct {
	coordinator *replication.Coordinator
	idx         index.Index
	uploads     *multipart.Registry
	vc          *volumeclient.Client
	config      types.Config
}

// New wires a Server from its dependencies.
func New(coordinator *replication.Coordinator, idx index.Index, uploads *multipart.Registry, vc *volumeclient.Client, config types.Config) *Server {
	return &Server{
		coordinator: coordinator,
		idx:         idx,
		uploads:     uploads,
		vc:          vc,
		config:      config,
	}
}

// ServeHTTP dispatches per §4.F: multipart markers, then list/unlinked
// markers, then S3 bucket listing, then batch-delete, then the single-object
// handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timer := metrics.NewTimer()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
		log.WithComponent("server").Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Msg("request")
	}()

	s.route(sw, r)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// The key is the URL path verbatim, leading slash included; it feeds
	// directly into the rendezvous hash, so stripping it would shift every
	// key's placement.
	key := r.URL.Path

	switch {
	case q.Has("uploads") || q.Has("uploadId") || q.Has("partNumber"):
		s.handleMultipart(w, r, key)
	case q.Has("list") || q.Has("unlinked"):
		s.handleList(w, r, key)
	case strings.HasSuffix(r.URL.Path, "/") && q.Has("prefix"):
		s.handleListBucket(w, r, q.Get("prefix"))
	case r.Method == http.MethodPost && q.Has("delete"):
		s.handleBatchDelete(w, r)
	default:
		s.handleObject(w, r, key)
	}
}

// handleObject implements §4.G: GET/HEAD redirect-to-volume, PUT single-shot
// write, DELETE (unlink or purge).
func (s *Server) handleObject(w http.ResponseWriter, r *http.Request, key string) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.handleGetHead(w, r, key)
	case http.MethodPut:
		s.handlePut(w, r, key)
	case http.MethodDelete:
		s.handleDelete(w, r, key)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetHead(w http.ResponseWriter, r *http.Request, key string) {
	rec, err := s.coordinator.Record([]byte(key))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if rec.Hash != "" {
		w.Header().Set("Content-Md5", rec.Hash)
	}

	if rec.Deleted != types.Live {
		if s.config.Fallback != "" {
			w.Header().Set("Location", s.config.Fallback+placement.Key2Path([]byte(key)))
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(http.StatusFound)
			return
		}
		http.NotFound(w, r)
		return
	}

	desired := placement.Key2Volume([]byte(key), s.config.Volumes, s.config.Replicas, s.config.Subvolumes)
	if placement.NeedsRebalance(rec.Volumes, desired) {
		w.Header().Set("Key-Balance", "unbalanced")
	} else {
		w.Header().Set("Key-Volumes", strings.Join(rec.Volumes, ","))
	}

	path := placement.Key2Path([]byte(key))
	order := rand.Perm(len(rec.Volumes))
	for _, i := range order {
		vol := rec.Volumes[i]
		if s.vc.Head(r.Context(), vol, path) {
			w.Header().Set("Location", fmt.Sprintf("http://%s%s", vol, path))
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(http.StatusFound)
			return
		}
	}

	http.NotFound(w, r)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, key string) {
	if r.ContentLength <= 0 {
		log.WithKey(key).Warn().Str("op", "put").Msg("missing content-length")
		http.Error(w, "Content-Length required", http.StatusLengthRequired)
		return
	}

	if rec, err := s.coordinator.Record([]byte(key)); err == nil && rec.Deleted == types.Live {
		log.WithKey(key).Warn().Str("op", "put").Msg("rejected: key already exists")
		http.Error(w, "key already exists", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.WithKey(key).Error().Err(err).Str("op", "put").Msg("failed to read body")
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}

	if err := s.coordinator.Put(r.Context(), []byte(key), body); err != nil {
		writeReplicationError(w, key, "put", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, key string) {
	unlink := r.URL.Query().Has("unlink")
	// volume deletes run detached from the request so a client disconnecting
	// mid-request cannot abort them halfway.
	err := s.coordinator.Delete(context.Background(), []byte(key), unlink)
	switch err {
	case nil:
		w.WriteHeader(http.StatusNoContent)
	case replication.ErrNotFound:
		log.WithKey(key).Warn().Str("op", "delete").Msg("key not found")
		http.NotFound(w, r)
	case replication.ErrUnlinkNotLive:
		log.WithKey(key).Warn().Str("op", "delete").Msg("record is not live")
		http.Error(w, "record is not live", http.StatusForbidden)
	default:
		writeReplicationError(w, key, "delete", err)
	}
}

func writeReplicationError(w http.ResponseWriter, key, op string, err error) {
	logger := log.WithKey(key)
	switch err {
	case replication.ErrOverwrite:
		logger.Warn().Err(err).Str("op", op).Msg("replication rejected")
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case replication.ErrPartialFailure:
		logger.Error().Err(err).Str("op", op).Msg("replication failed, volumes left inconsistent")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		logger.Error().Err(err).Str("op", op).Msg("replication error")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleMultipart implements §4.H.
func (s *Server) handleMultipart(w http.ResponseWriter, r *http.Request, key string) {
	query := r.URL.Query()

	switch {
	case r.Method == http.MethodPost && query.Has("uploads"):
		if rec, err := s.coordinator.Record([]byte(key)); err == nil && rec.Deleted == types.Live {
			log.WithKey(key).Warn().Str("op", "multipart-initiate").Msg("rejected: key already exists")
			http.Error(w, "key already exists", http.StatusForbidden)
			return
		}
		id := s.uploads.Initiate()
		w.Header().Set("Content-Type", "application/xml")
		_ = xml.NewEncoder(w).Encode(s3xml.InitiateMultipartUploadResult{UploadID: id})

	case r.Method == http.MethodPut && query.Has("partNumber"):
		uploadID := query.Get("uploadId")
		partNumber, err := strconv.Atoi(query.Get("partNumber"))
		if err != nil {
			log.WithUploadID(uploadID).Warn().Str("op", "multipart-stage").Msg("invalid partNumber")
			http.Error(w, "invalid partNumber", http.StatusBadRequest)
			return
		}
		if err := s.uploads.StagePart(uploadID, partNumber, r.Body); err != nil {
			log.WithUploadID(uploadID).Warn().Err(err).Str("op", "multipart-stage").Msg("stage part failed")
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPost:
		uploadID := query.Get("uploadId")
		var cmu s3xml.CompleteMultipartUpload
		if err := xml.NewDecoder(r.Body).Decode(&cmu); err != nil {
			log.WithUploadID(uploadID).Warn().Err(err).Str("op", "multipart-complete").Msg("malformed CompleteMultipartUpload body")
			http.Error(w, "malformed CompleteMultipartUpload body", http.StatusBadRequest)
			return
		}
		partNumbers := make([]int, len(cmu.Parts))
		for i, p := range cmu.Parts {
			partNumbers[i] = p.PartNumber
		}
		body, err := s.uploads.Complete(uploadID, partNumbers)
		if err != nil {
			log.WithUploadID(uploadID).Warn().Err(err).Str("op", "multipart-complete").Msg("complete failed")
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		if err := s.coordinator.Put(r.Context(), []byte(key), body); err != nil {
			writeReplicationError(w, key, "multipart-complete", err)
			return
		}
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodDelete:
		uploadID := query.Get("uploadId")
		if err := s.uploads.Abort(uploadID); err != nil {
			log.WithUploadID(uploadID).Warn().Err(err).Str("op", "multipart-abort").Msg("abort failed")
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleBatchDelete implements the POST /bucket?delete path: hard-delete
// every listed key, aborting on the first failure.
func (s *Server) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	var del s3xml.Delete
	if err := xml.NewDecoder(r.Body).Decode(&del); err != nil {
		http.Error(w, "malformed Delete body", http.StatusBadRequest)
		return
	}

	for _, obj := range del.Objects {
		if err := s.coordinator.Delete(r.Context(), []byte(obj.Key), false); err != nil {
			writeReplicationError(w, obj.Key, "batch-delete", err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleList implements §4.I: GET /prefix?list and GET /prefix?unlinked.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request, prefix string) {
	query := r.URL.Query()
	start := query.Get("start")
	limit := 0
	if l := query.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	wantLive := query.Has("list")
	var keys []string
	next := ""
	truncated := false

	err := s.idx.PrefixIter([]byte(prefix), func(e index.Entry) bool {
		k := string(e.Key)
		// start is exclusive: skip every key up to and including it, whether
		// or not start itself is still in the index.
		if start != "" && k <= start {
			return true
		}

		rec, err := codec.Parse(e.Value)
		if err != nil {
			return true
		}
		if wantLive && rec.Deleted != types.Live {
			return true
		}
		if !wantLive && rec.Deleted != types.Soft {
			return true
		}

		if len(keys) >= maxListKeys {
			truncated = true
			return false
		}
		if limit > 0 && len(keys) >= limit {
			next = k
			return false
		}

		keys = append(keys, k)
		return true
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if truncated {
		http.Error(w, "too many keys", http.StatusRequestEntityTooLarge)
		return
	}

	writeListJSON(w, next, keys)
}

func writeListJSON(w http.ResponseWriter, next string, keys []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"next":%q,"keys":[`, next)
	for i, k := range keys {
		if i > 0 {
			fmt.Fprint(w, ",")
		}
		fmt.Fprintf(w, "%q", k)
	}
	fmt.Fprint(w, "]}")
}

// handleListBucket implements the S3-style GET /bucket/?prefix=… path: LIVE
// keys under bucket+prefix, returned relative to the bucket path.
func (s *Server) handleListBucket(w http.ResponseWriter, r *http.Request, prefix string) {
	bucket := r.URL.Path
	var keys []string
	err := s.idx.PrefixIter([]byte(bucket+prefix), func(e index.Entry) bool {
		rec, err := codec.Parse(e.Value)
		if err != nil || rec.Deleted != types.Live {
			return true
		}
		keys = append(keys, strings.TrimPrefix(string(e.Key), bucket))
		return true
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_ = xml.NewEncoder(w).Encode(s3xml.ListBucketResult{Prefix: prefix, Keys: keys})
}

// statusWriter captures the status code written so the access-log/metrics
// middleware can report it after the handler returns.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}
