package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/dreamware/knnshard/internal/cluster"
)

// Registration describes how a worker announces itself to the directory.
type Registration struct {
	DirectoryURL string
	Self         cluster.Member
	Group        int
	Attempts     int
	Interval     time.Duration // spacing between attempts
}

// Register sends the join call, retrying up to reg.Attempts times with
// reg.Interval between attempts. A 4xx answer such as an unknown group or a
// rejected member is final and is not retried.
//
// An answer that does not parse as a member list is logged and treated as
// success with a nil list: the join itself went through.
//
// Parameters:
//   - ctx: Cancels waiting between attempts and the join call itself
//   - t: Transport used to reach the directory
//   - reg: Directory address, the member to announce and the retry budget
//   - log: Logger for retries; nil uses slog.Default()
//
// Returns:
//   - []cluster.Member: The group as the directory listed it after the join
//   - error: The last failure once attempts run out, or the permanent one
//
// Example:
//
//	peers, err := worker.Register(ctx, cluster.NewHTTPTransport(5*time.Second), worker.Registration{
//	    DirectoryURL: "http://127.0.0.1:5000",
//	    Self:         cluster.Member{Host: "127.0.0.1", Port: 5001},
//	    Attempts:     10,
//	    Interval:     400 * time.Millisecond,
//	}, log)
func Register(ctx context.Context, t cluster.Transport, reg Registration, log *slog.Logger) ([]cluster.Member, error) {
	if log == nil {
		log = slog.Default()
	}
	attempts := max(reg.Attempts, 1)
	limiter := rate.NewLimiter(rate.Every(reg.Interval), 1)

	payload, err := json.Marshal(cluster.JoinRequest{
		Entity:  reg.Group,
		Address: reg.Self.Host,
		Port:    reg.Self.Port,
	})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
		data, err := t.Send(ctx, reg.DirectoryURL, cluster.EntityPath, http.MethodPut, payload)
		if err != nil {
			if permanent(err) {
				return nil, fmt.Errorf("register with %s: %w", reg.DirectoryURL, err)
			}
			lastErr = err
			log.Warn("register retry", "attempt", i+1, "of", attempts, "directory", reg.DirectoryURL, "error", err)
			continue
		}

		var members []cluster.Member
		if err := json.Unmarshal(data, &members); err != nil {
			log.Warn("unparsable join response", "body", string(data), "error", err)
			return nil, nil
		}
		log.Info("registered with directory", "directory", reg.DirectoryURL,
			"group", reg.Group, "peers", len(members))
		return members, nil
	}
	return nil, fmt.Errorf("register with %s after %d attempts: %w", reg.DirectoryURL, attempts, lastErr)
}

// permanent reports whether the directory refused the join in a way a retry
// cannot change.
func permanent(err error) bool {
	var se *cluster.StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return se.Code >= 400 && se.Code < 500
}

// KeepRegistered repeats the join every interval until ctx is done. Joins
// are idempotent, so this only matters after the directory evicted the
// worker or lost its state. Failures are logged and retried on the next
// tick.
func KeepRegistered(ctx context.Context, t cluster.Transport, reg Registration, interval time.Duration, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	reg.Attempts = 1
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := Register(ctx, t, reg, log); err != nil && ctx.Err() == nil {
				log.Warn("rejoin failed", "directory", reg.DirectoryURL, "error", err)
			}
		}
	}
}
