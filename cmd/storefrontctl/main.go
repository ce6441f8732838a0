package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/client"
	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/payments"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/observability"
)

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		code := 1
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			code = exit.ExitCode()
		}
		os.Exit(code)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "storefrontctl",
		Usage:     "exercise the storefront API from a terminal",
		Writer:    stdout,
		ErrWriter: stderr,
		// Exit codes are applied in main.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Value:   "http://localhost:8080",
				Usage:   "storefront API base URL",
				EnvVars: []string{"STOREFRONT_API_URL"},
			},
			&cli.StringFlag{
				Name:    "courtesy-token",
				Usage:   "staff token sent with courtesy orders and manual discounts",
				EnvVars: []string{"STOREFRONT_COURTESY_TOKEN"},
			},
			&cli.StringFlag{
				Name:  "courtesy-header",
				Value: "X-Courtesy-Token",
				Usage: "header carrying the staff token",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "emit structured poll logs",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "products",
				Usage: "browse the catalog",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "list the published catalog",
						Action: func(cCtx *cli.Context) error {
							c, err := apiClient(cCtx)
							if err != nil {
								return err
							}
							products, err := c.ListProducts(cCtx.Context)
							if err != nil {
								return err
							}
							return printJSON(cCtx.App.Writer, products)
						},
					},
				},
			},
			{
				Name:  "shipping",
				Usage: "address lookup and freight quotes",
				Subcommands: []*cli.Command{
					{
						Name:      "cep",
						Usage:     "look up an address by CEP",
						ArgsUsage: "CEP",
						Action: func(cCtx *cli.Context) error {
							if cCtx.NArg() != 1 {
								return cli.Exit("cep: exactly one CEP is required", 2)
							}
							c, err := apiClient(cCtx)
							if err != nil {
								return err
							}
							address, err := c.LookupCEP(cCtx.Context, cCtx.Args().First())
							if err != nil {
								return err
							}
							return printJSON(cCtx.App.Writer, address)
						},
					},
					{
						Name:  "quote",
						Usage: "quote freight for a destination",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "cep", Required: true, Usage: "destination CEP"},
							&cli.StringSliceFlag{Name: "item", Required: true, Usage: "PRODUCT_ID[:QUANTITY], repeatable"},
						},
						Action: func(cCtx *cli.Context) error {
							items, err := parseItems(cCtx.StringSlice("item"))
							if err != nil {
								return cli.Exit(err.Error(), 2)
							}
							c, err := apiClient(cCtx)
							if err != nil {
								return err
							}
							quote, err := c.QuoteFreight(cCtx.Context, cCtx.String("cep"), items)
							if err != nil {
								return err
							}
							return printJSON(cCtx.App.Writer, quote)
						},
					},
				},
			},
			{
				Name:  "checkout",
				Usage: "place an order from a JSON checkout request",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "checkout request JSON, - for stdin"},
					&cli.StringFlag{Name: "idempotency-key", Usage: "reuse a key to retry the same submission"},
					&cli.BoolFlag{Name: "wait", Usage: "poll until the payment settles"},
					&cli.DurationFlag{Name: "interval", Usage: "poll interval override"},
					&cli.DurationFlag{Name: "timeout", Usage: "poll timeout override"},
				},
				Action: func(cCtx *cli.Context) error {
					req, err := readCheckoutRequest(cCtx.String("file"), cCtx.App.Reader)
					if err != nil {
						return cli.Exit(err.Error(), 2)
					}
					if key := cCtx.String("idempotency-key"); key != "" {
						req.IdempotencyKey = key
					}
					c, err := apiClient(cCtx)
					if err != nil {
						return err
					}
					resp, err := c.PlaceOrder(cCtx.Context, req)
					if err != nil {
						return err
					}
					if err := printJSON(cCtx.App.Writer, resp); err != nil {
						return err
					}
					if !cCtx.Bool("wait") || isSettled(resp.PaymentStatus) {
						return nil
					}
					return pollOrder(cCtx, c, resp.OrderID, domain.PaymentMethod(strings.ToLower(req.Payment.Method)))
				},
			},
			{
				Name:  "orders",
				Usage: "inspect placed orders",
				Subcommands: []*cli.Command{
					{
						Name:      "status",
						Usage:     "show an order's payment status",
						ArgsUsage: "ORDER_ID",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "token", Usage: "order access token returned by checkout"},
						},
						Action: func(cCtx *cli.Context) error {
							if cCtx.NArg() != 1 {
								return cli.Exit("status: exactly one order id is required", 2)
							}
							c, err := apiClient(cCtx)
							if err != nil {
								return err
							}
							orderID := cCtx.Args().First()
							c.SetOrderToken(orderID, cCtx.String("token"))
							status, err := c.OrderStatus(cCtx.Context, orderID)
							if err != nil {
								return err
							}
							return printJSON(cCtx.App.Writer, status)
						},
					},
					{
						Name:      "watch",
						Usage:     "wait until an order's payment is confirmed, fails or times out",
						ArgsUsage: "ORDER_ID",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "token", Usage: "order access token returned by checkout"},
							&cli.StringFlag{Name: "method", Value: string(domain.PaymentMethodPIX), Usage: "pix or card, selects the default cadence"},
							&cli.DurationFlag{Name: "interval", Usage: "poll interval override"},
							&cli.DurationFlag{Name: "timeout", Usage: "poll timeout override"},
						},
						Action: func(cCtx *cli.Context) error {
							if cCtx.NArg() != 1 {
								return cli.Exit("watch: exactly one order id is required", 2)
							}
							c, err := apiClient(cCtx)
							if err != nil {
								return err
							}
							orderID := cCtx.Args().First()
							c.SetOrderToken(orderID, cCtx.String("token"))
							return pollOrder(cCtx, c, orderID, domain.PaymentMethod(strings.ToLower(cCtx.String("method"))))
						},
					},
				},
			},
		},
	}
}

func apiClient(cCtx *cli.Context) (*client.Client, error) {
	return client.New(cCtx.String("api-url"),
		client.WithCourtesyToken(cCtx.String("courtesy-header"), cCtx.String("courtesy-token")),
	)
}

type pollResult struct {
	OrderID  string `json:"orderId"`
	State    string `json:"state"`
	Status   string `json:"status,omitempty"`
	Requests int    `json:"requests"`
	Error    string `json:"error,omitempty"`
}

func pollOrder(cCtx *cli.Context, source payments.StatusSource, orderID string, method domain.PaymentMethod) error {
	logger := zap.NewNop()
	if cCtx.Bool("verbose") {
		built, err := observability.NewLogger()
		if err != nil {
			return err
		}
		logger = built.Named("storefrontctl")
	}
	defer func() { _ = logger.Sync() }()

	var settled string
	poller, err := payments.NewPoller(payments.PollerConfig{
		Source:    source,
		OrderID:   orderID,
		Method:    method,
		Interval:  cCtx.Duration("interval"),
		Timeout:   cCtx.Duration("timeout"),
		OnSuccess: func(status string) { settled = status },
		Logger:    observability.NewEventLogger(logger),
	})
	if err != nil {
		return err
	}
	if err := poller.Start(cCtx.Context); err != nil {
		return err
	}
	defer poller.Stop()
	state, waitErr := poller.Wait(cCtx.Context)

	result := pollResult{OrderID: orderID, State: string(state), Status: settled, Requests: poller.Requests()}
	if waitErr != nil {
		result.Error = waitErr.Error()
	}
	if err := printJSON(cCtx.App.Writer, result); err != nil {
		return err
	}
	switch {
	case state == payments.PollSucceeded:
		return nil
	case cCtx.Context.Err() != nil:
		return cli.Exit("interrupted before the payment settled", exitInterrupted)
	case errors.Is(waitErr, payments.ErrPollTimeout):
		return cli.Exit("payment not confirmed in time", 4)
	default:
		return cli.Exit("payment not approved", 3)
	}
}

func isSettled(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PAID", "AUTHORIZED":
		return true
	default:
		return false
	}
}

func parseItems(raw []string) ([]client.Item, error) {
	items := make([]client.Item, 0, len(raw))
	for _, entry := range raw {
		id, qty, hasQty := strings.Cut(strings.TrimSpace(entry), ":")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("item %q: product id is required", entry)
		}
		quantity := 1
		if hasQty {
			n, err := strconv.Atoi(strings.TrimSpace(qty))
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("item %q: quantity must be a positive integer", entry)
			}
			quantity = n
		}
		items = append(items, client.Item{ProductID: id, Quantity: quantity})
	}
	return items, nil
}

func readCheckoutRequest(path string, stdin io.Reader) (client.CheckoutRequest, error) {
	var reader io.Reader
	if path == "-" {
		reader = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return client.CheckoutRequest{}, err
		}
		defer f.Close()
		reader = f
	}
	var req client.CheckoutRequest
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return client.CheckoutRequest{}, fmt.Errorf("checkout request: %w", err)
	}
	return req, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
