// Package quill embeds an operation audit and profiling capture pipeline.
//
// Quick start:
//
//	q, err := quill.New(quill.WithAuditFile("/var/log/myapp/auditLog.json"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer q.Close(context.Background())
//
//	c := quill.Client{Remote: quill.Endpoint{IP: "10.0.0.8", Port: 51234}}
//	q.Authenticate(c, "SCRAM-SHA-256", quill.User{Name: "john", DB: "test"}, quill.ResultOK)
//
// Audit events are never dropped: calls enqueue and return, and Close
// writes everything queued before returning. Profiling is sampled and
// lossy under pressure. A Quill is safe for concurrent use.
package quill
