package quill_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/crimson-sun/quill/pkg/quill"
)

func Example() {
	dir, err := os.MkdirTemp("", "quill-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "auditLog.json")

	q, err := quill.New(quill.WithAuditFile(path))
	if err != nil {
		log.Fatal(err)
	}

	c := quill.Client{Remote: quill.Endpoint{IP: "10.0.0.8", Port: 51234}}
	john := quill.User{Name: "john", DB: "test"}
	q.Authenticate(c, "SCRAM-SHA-256", john, quill.ResultOK)
	q.Authenticate(c, "SCRAM-SHA-256", john, quill.ResultAuthenticationFailed)
	if err := q.Close(context.Background()); err != nil {
		log.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var ev struct {
			Atype  string `json:"atype"`
			Result int    `json:"result"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			log.Fatal(err)
		}
		fmt.Println(ev.Atype, ev.Result)
	}
	// Output:
	// authenticate 0
	// authenticate 18
	// shutdown 0
}

func ExampleQuill_Command() {
	q, err := quill.New(quill.WithProfiling(quill.ProfileSlowOnly, 200))
	if err != nil {
		log.Fatal(err)
	}
	defer q.Close(context.Background())

	prev, err := q.Command(context.Background(), quill.D("profile", 2, "ratelimit", 10))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("was:", prev["was"], "slowms:", prev["slowms"], "ratelimit:", prev["ratelimit"])

	_, err = q.Command(context.Background(), quill.D("profile", 2, "sampleRate", 0.5))
	fmt.Println("code:", quill.ErrorCode(err))
	// Output:
	// was: 1 slowms: 200 ratelimit: 1
	// code: 2
}
