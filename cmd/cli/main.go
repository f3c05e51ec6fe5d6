package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

func main() {
	events := flag.Int("events", 5, "number of recent events to show (0 to skip)")
	flag.Parse()

	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	api = strings.TrimSuffix(api, "/")
	key := os.Getenv("API_KEY")
	client := &http.Client{Timeout: 10 * time.Second}

	var snap domain.Snapshot
	if err := get(client, api+"/api/status", key, &snap); err != nil {
		fmt.Println("Error contacting API:", err)
		os.Exit(1)
	}

	fmt.Printf("%s  %s  phase=%s  failures=%d  restarts=%d\n",
		snap.Target, snap.Status, snap.Phase, snap.ConsecutiveFailures, snap.RemediationAttempts)
	if snap.OfflineSince != nil {
		fmt.Printf("offline since %s (%s)\n", snap.OfflineSince.Format(time.RFC3339),
			time.Since(*snap.OfflineSince).Round(time.Second))
	}
	if snap.CooldownUntil != nil {
		fmt.Printf("waiting for restart until %s\n", snap.CooldownUntil.Format(time.RFC3339))
	}
	if snap.LastSample != nil {
		var parts []string
		for _, name := range snap.LastSample.Names() {
			state := "fail"
			if snap.LastSample.Checks[name].Success {
				state = "ok"
			}
			parts = append(parts, string(name)+"="+state)
		}
		fmt.Println("last checks:", strings.Join(parts, " "))
	}

	if *events <= 0 {
		return
	}
	var evs []domain.Event
	if err := get(client, fmt.Sprintf("%s/api/events?limit=%d", api, *events), key, &evs); err != nil {
		fmt.Println("Error fetching events:", err)
		os.Exit(1)
	}
	for _, ev := range evs {
		fmt.Printf("%s  %-22s attempts=%d\n", ev.At.Format(time.RFC3339), ev.Kind, ev.RemediationAttempts)
	}
}

func get(c *http.Client, url, key string, out any) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
