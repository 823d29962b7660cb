package override

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/logging"
)

// Guest ABI: the procedure module must export
//
//	dg_alloc(size u32) -> u32          reserve size bytes, return the offset
//	dg_merge(lptr, llen, rptr, rlen u32) -> u64
//
// dg_merge receives the local and remote inputs in linear memory and
// returns the merged payload as (offset << 32) | length. Each input is the
// conflict header block followed by that side's payload; the returned
// payload carries no header. The module gets no WASI and no host functions.
const (
	allocExport = "dg_alloc"
	mergeExport = "dg_merge"
)

// Header describes the conflict to a merge procedure. It is encoded as
// "key: value" lines terminated by a blank line and prepended to both
// inputs, so procedures can branch on the resource path or category.
type Header struct {
	ConflictID   string
	ResourcePath string
	Category     string
	Score        float64
}

// Block renders the header in its wire form.
func (h Header) Block() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "conflict_id: %s\n", h.ConflictID)
	fmt.Fprintf(&b, "path: %s\n", h.ResourcePath)
	fmt.Fprintf(&b, "category: %s\n", h.Category)
	fmt.Fprintf(&b, "score: %.4f\n", h.Score)
	b.WriteByte('\n')
	return b.Bytes()
}

// Sandbox runs custom merge procedures inside a wazero interpreter with a
// hard wall-clock limit. Any escape attempt (missing exports, imports the
// runtime cannot satisfy, traps) fails closed.
type Sandbox struct {
	timeout time.Duration
	logger  logging.Logger
}

func NewSandbox(timeout time.Duration, logger logging.Logger) *Sandbox {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Sandbox{timeout: timeout, logger: logger.With("module", "sandbox")}
}

// Merge executes the compiled procedure over the two payloads, each
// prefixed with the conflict header, and returns the merged result. The
// procedure's execution time is bounded by the sandbox timeout
// (common.ErrSandboxTimeout); modules that need imports, lack the ABI
// exports, or trap are rejected with common.ErrSandboxViolation.
func (s *Sandbox) Merge(ctx context.Context, procedure []byte, hdr Header, local, remote []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	block := hdr.Block()
	local = append(append([]byte(nil), block...), local...)
	remote = append(append([]byte(nil), block...), remote...)

	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter().
		WithCloseOnContextDone(true))
	defer r.Close(context.WithoutCancel(ctx))

	mod, err := r.Instantiate(ctx, procedure)
	if err != nil {
		if timedOut(ctx, err) {
			return nil, fmt.Errorf("instantiate procedure: %w", common.ErrSandboxTimeout)
		}
		return nil, fmt.Errorf("instantiate procedure: %v: %w", err, common.ErrSandboxViolation)
	}

	alloc := mod.ExportedFunction(allocExport)
	merge := mod.ExportedFunction(mergeExport)
	if alloc == nil || merge == nil {
		return nil, fmt.Errorf("procedure does not export %s/%s: %w", allocExport, mergeExport, common.ErrSandboxViolation)
	}

	lptr, err := s.writeGuest(ctx, mod, alloc, local)
	if err != nil {
		return nil, err
	}
	rptr, err := s.writeGuest(ctx, mod, alloc, remote)
	if err != nil {
		return nil, err
	}

	out, err := merge.Call(ctx, uint64(lptr), uint64(len(local)), uint64(rptr), uint64(len(remote)))
	if err != nil {
		if timedOut(ctx, err) {
			return nil, fmt.Errorf("merge procedure: %w", common.ErrSandboxTimeout)
		}
		return nil, fmt.Errorf("merge procedure: %v: %w", err, common.ErrSandboxViolation)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("merge procedure returned %d values: %w", len(out), common.ErrSandboxViolation)
	}

	ptr := uint32(out[0] >> 32)
	length := uint32(out[0])
	result, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("merge result out of bounds (ptr=%d len=%d): %w", ptr, length, common.ErrSandboxViolation)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("merge procedure produced empty payload: %w", common.ErrSandboxViolation)
	}
	s.logger.Debug(ctx, "custom merge completed",
		"local_len", len(local), "remote_len", len(remote), "result_len", len(result))
	return append([]byte(nil), result...), nil
}

// writeGuest allocates guest memory via dg_alloc and copies payload in.
func (s *Sandbox) writeGuest(ctx context.Context, mod api.Module, alloc api.Function, payload []byte) (uint32, error) {
	res, err := alloc.Call(ctx, uint64(len(payload)))
	if err != nil {
		if timedOut(ctx, err) {
			return 0, fmt.Errorf("guest alloc: %w", common.ErrSandboxTimeout)
		}
		return 0, fmt.Errorf("guest alloc: %v: %w", err, common.ErrSandboxViolation)
	}
	if len(res) != 1 {
		return 0, fmt.Errorf("guest alloc returned %d values: %w", len(res), common.ErrSandboxViolation)
	}
	ptr := uint32(res[0])
	if len(payload) > 0 && !mod.Memory().Write(ptr, payload) {
		return 0, fmt.Errorf("guest alloc returned bad pointer %d: %w", ptr, common.ErrSandboxViolation)
	}
	return ptr, nil
}

func timedOut(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var exit *sys.ExitError
	return errors.As(err, &exit) && exit.ExitCode() == sys.ExitCodeDeadlineExceeded
}
