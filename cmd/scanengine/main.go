package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/patchcore/scanengine/internal/accel"
	"github.com/patchcore/scanengine/internal/api"
	"github.com/patchcore/scanengine/internal/audit"
	"github.com/patchcore/scanengine/internal/boundary"
	"github.com/patchcore/scanengine/internal/persistence"
	"github.com/patchcore/scanengine/internal/pipeline"
	"github.com/patchcore/scanengine/internal/scanner"
	"github.com/patchcore/scanengine/internal/ssot"
	"github.com/patchcore/scanengine/internal/tracker"
	"github.com/patchcore/scanengine/pkg/models"
)

func main() {
	log.Println("Starting Scan Engine (evidence admission and audit core)...")

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded (%v); relying on process environment", err)
	}

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	profileName := ssot.ProfileName(getEnvOrDefault("SCAN_PROFILE", string(ssot.ProfileStandard)))
	profiles := ssot.Profiles()
	profile, ok := profiles[profileName]
	if !ok {
		log.Fatalf("FATAL: unknown SCAN_PROFILE %q; valid values: conservative, standard, extreme, lab", profileName)
	}

	drift, err := ssot.BindSession(profile)
	if err != nil {
		log.Fatalf("FATAL: failed to bind session to profile %q: %v", profile.Name, err)
	}
	log.Printf("Bound session to profile %q (hash=%s)", profile.Name, drift.BoundHash())

	var store *persistence.Store
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		store, err = persistence.Connect(context.Background(), dbURL)
		if err != nil {
			log.Printf("Warning: failed to connect to PostgreSQL, continuing without durable persistence. Error: %v", err)
			store = nil
		} else {
			defer store.Close()
			if err := store.InitSchema(context.Background()); err != nil {
				log.Printf("Warning: schema init failed: %v", err)
			}
		}
	} else {
		log.Println("DATABASE_URL not set; running without durable persistence")
	}

	var auditWriter audit.Writer
	if store != nil {
		auditWriter = store
	} else {
		path := getEnvOrDefault("AUDIT_LOG_PATH", "scanengine-audit.ndjson")
		fw, ferr := audit.NewFileWriter(path)
		if ferr != nil {
			log.Printf("Warning: failed to open local audit log %q, trace emission disabled: %v", path, ferr)
		} else {
			defer fw.Close()
			auditWriter = fw
		}
	}

	signingKey := []byte(requireEnv("AUDIT_SIGNING_KEY"))
	var emitter *audit.Emitter
	if auditWriter != nil {
		emitter = audit.NewEmitter(auditWriter, signingKey)
	}

	var chainScanner *scanner.ChainScanner
	wsHub := api.NewHub()
	go wsHub.Run()

	if store != nil {
		chainScanner = scanner.NewChainScanner(store, func(alert scanner.VerificationAlert) {
			log.Printf("[ChainScanner] ALERT: provenance chain broken at entry %d", alert.BrokenAtIndex)
		})
	}

	clock := ssot.SystemClock{}
	calc := accel.NewCalculator(profile.Constants)
	enforcer := boundary.New(boundary.PolicyWarn, func(a boundary.Access) {
		log.Printf("[Boundary] illegal cross-domain access attempted: %s -> %s", a.From, a.To)
	})

	var p *pipeline.Pipeline

	var flush tracker.FlushHandler
	if store != nil {
		flush = func(evidence models.AcceptedEvidence) error {
			return store.SaveCapacityMetrics(context.Background(), evidence.CandidateID, p.Tracker().Snapshot())
		}
	}

	policyHash, err := profile.Hash()
	if err != nil {
		log.Fatalf("FATAL: failed to hash bound profile: %v", err)
	}

	p = pipeline.New(profile.Constants, clock, calc, flush, enforcer, policyHash)
	defer p.Close()

	handler := api.NewAPIHandler(p, emitter, profile, drift, chainScanner, wsHub)
	router := api.SetupRouter(handler)

	port := getEnvOrDefault("PORT", "5339")
	log.Printf("Scan Engine running on :%s (profile=%s)", port, profile.Name)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// requireEnv reads a required environment variable and exits if it is not set.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
