package pubsub

import "testing"

func TestResourceName(t *testing.T) {
	cases := []struct {
		name    string
		project string
		kind    string
		in      string
		want    string
	}{
		{name: "bare topic", project: "ramp", kind: "topics", in: "settlements", want: "projects/ramp/topics/settlements"},
		{name: "full topic", project: "ramp", kind: "topics", in: "projects/other/topics/x", want: "projects/other/topics/x"},
		{name: "wrong kind expands", project: "ramp", kind: "subscriptions", in: "projects/other/topics/x", want: "projects/ramp/subscriptions/projects/other/topics/x"},
		{name: "blank", project: "ramp", kind: "topics", in: "  ", want: ""},
		{name: "no project", project: "", kind: "topics", in: "settlements", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resourceName(tc.project, tc.kind, tc.in); got != tc.want {
				t.Fatalf("resourceName() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil {
		t.Fatal("expected nil publisher")
	}
	if c.Subscription("x") != nil {
		t.Fatal("expected nil subscriber")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Ping(nil); err == nil { //nolint:staticcheck
		t.Fatal("expected ping error on nil client")
	}
}
