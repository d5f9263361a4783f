package bridge

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/skillbridge/skillbridge/internal/observability"
)

// selfTest probes the health endpoint on each bound hostname shortly
// after start-up and logs the outcome. Advisory only: it never blocks
// Start and failures never affect serving.
func (b *Bridge) selfTest(port int) {
	time.Sleep(250 * time.Millisecond)

	client := &http.Client{Timeout: 5 * time.Second}
	for _, hostname := range []string{"127.0.0.1", "localhost"} {
		url := fmt.Sprintf("http://%s:%d/health", hostname, port)

		resp, err := client.Get(url)
		logger := observability.ServerLogger
		if err != nil {
			if logger != nil {
				logger.Warn("Self-test probe failed", zap.String("url", url), zap.Error(err))
			}
			continue
		}
		_ = resp.Body.Close()

		if logger != nil {
			logger.Info("Self-test probe succeeded",
				zap.String("url", url),
				zap.Int("status", resp.StatusCode))
		}
	}
}
