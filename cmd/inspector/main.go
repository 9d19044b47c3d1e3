// Command inspector dumps a running VaultGate instance's state to stdout,
// handy when poking at a deployment without a dashboard.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

func main() {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	key := flag.String("key", "", "operator key (optional, for event access parity)")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	for _, path := range []string{"/health", "/v1/rate", "/v1/silo", "/v1/status", "/v1/events?limit=10"} {
		fmt.Printf("--- GET %s ---\n", path)
		if err := dump(client, *base+path, *key); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		fmt.Println()
	}
}

func dump(client *http.Client, url, key string) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if key != "" {
		req.Header.Set("X-Operator-Key", key)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%d\n%s\n", resp.StatusCode, pretty)
	return nil
}
