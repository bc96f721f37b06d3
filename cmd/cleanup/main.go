// Command cleanup wipes every stored object, KV entry, and relational
// row through the relay's admin endpoint. Destructive and irreversible;
// it demands a typed confirmation before calling.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type cleanupResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Stats   struct {
		StorageOriginals   int   `json:"storage_originals"`
		StorageTransformed int   `json:"storage_transformed"`
		KVKeys             int64 `json:"kv_keys"`
		DBTransformations  int64 `json:"db_transformations"`
		DBUsers            int64 `json:"db_users"`
	} `json:"stats"`
}

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("url", "http://localhost:8080", "relay base URL")
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	flag.Parse()

	adminKey := os.Getenv("ADMIN_API_KEY")

	fmt.Println("WARNING: this will DELETE ALL user data:")
	fmt.Println("  - all archived images (originals and transformed)")
	fmt.Println("  - all KV job and short-link entries, and the public feed")
	fmt.Println("  - all database rows (transformations and users)")

	if !*yes {
		fmt.Print("Type 'DELETE ALL' to confirm: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "DELETE ALL" {
			fmt.Println("Cancelled.")
			return
		}
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimSuffix(*baseURL, "/")+"/admin/cleanup", nil)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if adminKey != "" {
		req.Header.Set("X-Admin-Key", adminKey)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("cleanup request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		log.Fatalf("cleanup failed: HTTP %d: %s", resp.StatusCode, body)
	}

	var result cleanupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("decode response: %v", err)
	}

	fmt.Println("Cleanup complete.")
	fmt.Printf("  Storage originals:   %d\n", result.Stats.StorageOriginals)
	fmt.Printf("  Storage transformed: %d\n", result.Stats.StorageTransformed)
	fmt.Printf("  KV keys:             %d\n", result.Stats.KVKeys)
	fmt.Printf("  DB transformations:  %d\n", result.Stats.DBTransformations)
	fmt.Printf("  DB users:            %d\n", result.Stats.DBUsers)
}
