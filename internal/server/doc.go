// Package server holds the process-level infrastructure shared by the
// transports: the ServerContext that owns the conversation engine and its
// lifecycle, health probes, the JSON session API and the dedicated metrics
// server.
//
// All dependencies are injected with functional options:
//
//	sc, err := server.NewServerContext(ctx,
//		server.WithConversations(orch),
//		server.WithLogger(logger),
//		server.WithDryRun(true),
//	)
//	if err != nil {
//		return err
//	}
//	defer sc.Shutdown()
//
//	mux := http.NewServeMux()
//	server.NewHealthChecker(sc).RegisterHealthEndpoints(mux)
//	server.NewAPI(sc).Register(mux)
package server
