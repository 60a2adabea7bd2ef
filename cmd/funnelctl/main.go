// Package main is the funnelctl command line tool: mint dashboard tokens,
// validate flow files, and seed a running server with sample data.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/funnel-platform/internal/flow"
	"github.com/capitalize-ai/funnel-platform/internal/middleware"
	"github.com/capitalize-ai/funnel-platform/internal/model"
)

func main() {
	root := &cobra.Command{
		Use:           "funnelctl",
		Short:         "Operations tool for the funnel platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(tokenCmd())
	root.AddCommand(flowCmd())
	root.AddCommand(seedCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func tokenCmd() *cobra.Command {
	var (
		secret  string
		tenant  string
		subject string
		scopes  []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a dashboard JWT",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("a signing secret is required (--secret or JWT_SECRET)")
			}
			if tenant == "" {
				return fmt.Errorf("--tenant is required")
			}

			token, err := middleware.NewToken(secret, tenant, subject, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "JWT signing secret (defaults to JWT_SECRET)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant ID to scope the token to")
	cmd.Flags().StringVar(&subject, "subject", "funnelctl", "token subject")
	cmd.Flags().StringSliceVar(&scopes, "scopes", []string{"admin"}, "token scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	return cmd
}

func flowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Flow graph utilities",
	}

	validate := &cobra.Command{
		Use:   "validate <file.json>",
		Short: "Validate a flow graph file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var f model.FunnelFlow
			if err := json.Unmarshal(raw, &f); err != nil {
				return fmt.Errorf("not a valid flow file: %w", err)
			}

			if err := flow.Normalize(&f); err != nil {
				return fmt.Errorf("flow is unusable: %w", err)
			}

			res := flow.Validate(&f)
			for _, msg := range res.Errors {
				fmt.Printf("error: %s\n", msg)
			}
			for _, id := range res.OrphanBlockIDs {
				fmt.Printf("orphan block: %s\n", id)
			}
			if !res.Valid() {
				return fmt.Errorf("flow is invalid (%d errors)", len(res.Errors))
			}

			fmt.Printf("ok: %d blocks, %d stages\n", len(f.Blocks), len(f.Stages))
			return nil
		},
	}

	cmd.AddCommand(validate)
	return cmd
}

func seedCmd() *cobra.Command {
	var (
		server string
		token  string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a running server with sample data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return fmt.Errorf("--token is required (mint one with funnelctl token)")
			}
			c := &seeder{server: server, token: token, http: &http.Client{Timeout: 10 * time.Second}}
			return c.run()
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "API server base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for the API")

	return cmd
}

type seeder struct {
	server string
	token  string
	http   *http.Client
}

func (s *seeder) run() error {
	course, err := s.createResource(&model.CreateResourceRequest{
		Name:     "Creator Course",
		Link:     "https://example.com/course",
		Type:     model.ResourceTypeMyProducts,
		Category: model.ResourceCategoryPaid,
	})
	if err != nil {
		return err
	}
	guide, err := s.createResource(&model.CreateResourceRequest{
		Name:      "Free Starter Guide",
		Link:      "https://example.com/guide",
		Type:      model.ResourceTypeAffiliate,
		Category:  model.ResourceCategoryFreeValue,
		PromoCode: "WELCOME10",
	})
	if err != nil {
		return err
	}
	fmt.Printf("created resources %s, %s\n", course.ID, guide.ID)

	funnel, err := s.createFunnel(&model.CreateFunnelRequest{
		Name:      "Launch Funnel",
		Resources: []string{course.ID, guide.ID},
	})
	if err != nil {
		return err
	}
	fmt.Printf("created funnel %s\n", funnel.ID)

	for _, o := range []model.CreateOrderRequest{
		{FunnelID: funnel.ID, ResourceID: course.ID, ProductName: "Creator Course", AmountCents: 4900},
		{FunnelID: funnel.ID, ResourceID: course.ID, ProductName: "Creator Course", AmountCents: 4900},
		{ProductName: "Coaching Call", AmountCents: 9900, Source: "manual"},
	} {
		if err := s.post("/api/v1/orders", o, nil); err != nil {
			return err
		}
	}
	fmt.Println("created 3 orders")

	for _, m := range []model.CreateMemberRequest{
		{Name: "Ada", Email: "ada@example.com", FunnelID: funnel.ID},
		{Name: "Grace", Email: "grace@example.com", Source: "newsletter"},
	} {
		if err := s.post("/api/v1/members", m, nil); err != nil {
			return err
		}
	}
	fmt.Println("created 2 members")

	return nil
}

func (s *seeder) createResource(req *model.CreateResourceRequest) (*model.Resource, error) {
	var out model.Resource
	if err := s.post("/api/v1/resources", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *seeder) createFunnel(req *model.CreateFunnelRequest) (*model.Funnel, error) {
	var out model.Funnel
	if err := s.post("/api/v1/funnels", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *seeder) post(path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, s.server+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: %s", path, resp.Status, bytes.TrimSpace(msg))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
