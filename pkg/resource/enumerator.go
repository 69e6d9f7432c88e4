package resource

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Card is one row of the device enumerator's output: an index and
// its memory figures in MiB.
type Card struct {
	Index   int
	TotalMB int
	UsedMB  int
	FreeMB  int
}

// availableFraction is the minimum free-memory fraction of total a
// card must have to count as available, per §4.C variant 3.
const availableFraction = 0.97

// Available reports whether the card is idle enough to hand out.
func (c Card) Available() bool {
	return float64(c.FreeMB) >= availableFraction*float64(c.TotalMB)
}

// Enumerator discovers the GPU cards present on the host. CanAlloc
// treats an enumeration failure as "no capacity" (§7: ResourceError
// surfaces as CanAlloc returning false, never a raised error).
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Card, error)
}

// NvidiaSMI shells out to the system's NVIDIA query tool, per §6: CSV,
// no header, no units, columns index,memory.total,memory.used,
// memory.free.
type NvidiaSMI struct {
	// Binary overrides the executable name, used by tests.
	Binary  string
	Timeout time.Duration
}

// NewNvidiaSMI constructs an enumerator using the system nvidia-smi.
func NewNvidiaSMI() *NvidiaSMI {
	return &NvidiaSMI{Binary: "nvidia-smi", Timeout: 5 * time.Second}
}

func (n *NvidiaSMI) Enumerate(ctx context.Context) ([]Card, error) {
	timeout := n.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, n.Binary,
		"--query-gpu=index,memory.total,memory.used,memory.free",
		"--format=csv,noheader,nounits")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("resource: %s: %w", n.Binary, err)
	}
	return parseNvidiaSMI(out.Bytes())
}

func parseNvidiaSMI(data []byte) ([]Card, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("resource: parsing nvidia-smi output: %w", err)
	}
	cards := make([]Card, 0, len(rows))
	for _, row := range rows {
		if len(row) != 4 {
			return nil, fmt.Errorf("resource: unexpected nvidia-smi row %v", row)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("resource: parsing index: %w", err)
		}
		total, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			return nil, fmt.Errorf("resource: parsing memory.total: %w", err)
		}
		used, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil {
			return nil, fmt.Errorf("resource: parsing memory.used: %w", err)
		}
		free, err := strconv.Atoi(strings.TrimSpace(row[3]))
		if err != nil {
			return nil, fmt.Errorf("resource: parsing memory.free: %w", err)
		}
		cards = append(cards, Card{Index: idx, TotalMB: total, UsedMB: used, FreeMB: free})
	}
	return cards, nil
}
