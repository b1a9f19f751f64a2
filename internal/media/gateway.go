package media

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/logger"
)

// findWorkingIPFSGateway probes all configured gateways in parallel with a
// HEAD request and returns the URL of the first one that serves the CID.
func findWorkingIPFSGateway(ctx context.Context, httpClient adapter.HTTPClient, cid string, gateways []string) (string, error) {
	if len(gateways) == 0 {
		return "", fmt.Errorf("no IPFS gateways configured")
	}

	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan string, len(gateways))
	var wg sync.WaitGroup

	for _, gateway := range gateways {
		candidate := fmt.Sprintf("https://%s/ipfs/%s", strings.TrimSuffix(gateway, "/"), cid)

		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := httpClient.Head(probeCtx, candidate)
			if err != nil {
				logger.DebugCtx(probeCtx, "IPFS gateway probe failed",
					zap.String("url", candidate),
					zap.Error(err),
				)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return
			}
			select {
			case results <- candidate:
			default:
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	select {
	case candidate, ok := <-results:
		if !ok {
			return "", fmt.Errorf("no IPFS gateway could serve %s", cid)
		}
		return candidate, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
