// Package natsclient connects to NATS for JetStream-backed sink buffers.
//
// A Client wraps one nats.Conn. Connect dials with retry and creates the
// JetStream context; afterwards nats.go reconnects on its own and the
// client tracks the state for logging and metrics:
//
//	client, err := natsclient.NewClient(cfg.NATS.URLs,
//		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
//		natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password),
//		natsclient.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
//
//	js, err := client.JetStream()
//
// Close drains the connection and clears stored credentials.
package natsclient
