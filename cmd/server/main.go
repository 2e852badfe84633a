package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/gridworks/catalogbridge/internal/api"
	"github.com/gridworks/catalogbridge/internal/catalog"
	"github.com/gridworks/catalogbridge/internal/config"
	"github.com/gridworks/catalogbridge/internal/db"
	"github.com/gridworks/catalogbridge/internal/domain"
	"github.com/gridworks/catalogbridge/internal/middleware"
	"github.com/gridworks/catalogbridge/internal/repository"
	"github.com/gridworks/catalogbridge/internal/sheet"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConfig, srvConfig, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	conn, err := db.NewConnection(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(dbConfig, srvConfig.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	productRepo := repository.NewProductRepository(conn)
	termRepo := repository.NewTermRepository(conn)

	// Variation rows resolve parent attributes through the request-scoped
	// loader when one is attached, otherwise straight from the repository.
	parentFetcher := func(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
		if loader := middleware.ProductLoaderFromContext(ctx); loader != nil {
			return loader.Fetch(ctx, ids)
		}
		products, err := productRepo.GetByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make(map[int64]domain.Product, len(products))
		for _, p := range products {
			out[p.ID] = p
		}
		return out, nil
	}

	projector := catalog.NewProjector(termRepo, parentFetcher)
	catalogService := catalog.NewService(productRepo, termRepo, projector)
	sheetService := sheet.NewService(catalogService)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   srvConfig.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Total", "X-Total-Pages", api.VersionHeader, "Link"},
	})

	router := api.NewRouter(catalogService, sheetService)

	handler := corsHandler.Handler(
		middleware.LoggingMiddleware(
			middleware.PermissionsMiddleware(
				middleware.DataLoaderMiddleware(productRepo)(router),
			),
		),
	)

	server := &http.Server{
		Addr:         srvConfig.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting catalog server on %s", srvConfig.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
