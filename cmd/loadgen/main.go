// Command loadgen fires concurrent bank-transfer checkouts at a single
// item against a running server and verifies that exactly one wins. It
// is a demonstration of the mutual-exclusion property, not a benchmark.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base url")
	itemID := flag.String("item", "", "item id to contend for")
	clients := flag.Int("clients", 50, "number of concurrent buyers")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *itemID == "" {
		log.Fatal().Msg("-item is required")
	}

	httpc := &http.Client{Timeout: 10 * time.Second}

	var reserved, unavailable, failed atomic.Int32
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			body, _ := json.Marshal(map[string]interface{}{
				"item_id": *itemID,
				"name":    fmt.Sprintf("buyer %d", n),
				"email":   fmt.Sprintf("buyer%d@example.com", n),
			})
			resp, err := httpc.Post(*baseURL+"/api/orders/create", "application/json", bytes.NewReader(body))
			if err != nil {
				failed.Add(1)
				return
			}
			defer resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusCreated:
				reserved.Add(1)
			case http.StatusConflict:
				unavailable.Add(1)
			default:
				failed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	log.Info().
		Int("clients", *clients).
		Int32("reserved", reserved.Load()).
		Int32("unavailable", unavailable.Load()).
		Int32("failed", failed.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("done")

	if reserved.Load() != 1 {
		log.Fatal().Int32("reserved", reserved.Load()).Msg("expected exactly one successful reservation")
	}
	log.Info().Msg("mutual exclusion held: exactly one buyer won")
}
