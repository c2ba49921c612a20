// Package audit implements VectorGate's async, buffered audit log writer:
// provisioning and admin actions are enqueued by request handlers and
// flushed to the control database in batches by a background goroutine, so
// logging never blocks the request path.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vectorgate/vectorgate/internal/auth"
)

// Entry is a single audit log record.
type Entry struct {
	TenantCode string
	Username   string
	Action     string
	Resource   string
	Detail     json.RawMessage
	IPAddress  netip.Addr
	UserAgent  string
	at         time.Time
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Writer is an async, buffered audit log writer.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

// NewWriter creates an audit Writer. Call Start to begin flushing.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start launches the background flush loop in a goroutine and returns
// immediately. The loop flushes pending entries and exits when ctx is
// cancelled or Close is called.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close stops accepting new entries and waits for the flush loop to drain.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an entry without blocking the caller. If the buffer is full
// the entry is dropped and a warning is logged — audit logging is
// best-effort, never a request-path dependency.
func (w *Writer) Log(entry Entry) {
	entry.at = time.Now()
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry", "action", entry.Action, "resource", entry.Resource)
	}
}

// LogFromRequest enqueues an entry using the tenant, identity, IP, and user
// agent carried by the request's context and headers.
func (w *Writer) LogFromRequest(r *http.Request, action, resource string, detail json.RawMessage) {
	entry := Entry{
		TenantCode: auth.TenantFromContext(r.Context()),
		Action:     action,
		Resource:   resource,
		Detail:     detail,
		IPAddress:  clientIP(r),
		UserAgent:  r.Header.Get("User-Agent"),
	}
	if id := auth.FromContext(r.Context()); id != nil {
		entry.Username = id.Username
	}
	w.Log(entry)
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var batch pgx.Batch
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO audit_log (tenant_code, username, action, resource, detail, ip_address, user_agent, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, e.TenantCode, e.Username, e.Action, e.Resource, e.Detail, nullableInet(e.IPAddress), e.UserAgent, e.at)
	}

	results := w.pool.SendBatch(ctx, &batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			w.logger.Error("writing audit log entry", "error", err)
		}
	}
}

func nullableInet(ip netip.Addr) any {
	if !ip.IsValid() {
		return nil
	}
	return ip
}

// clientIP extracts the client IP, preferring X-Forwarded-For and
// X-Real-IP over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
