package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"shortvid-pipeline/aivideo"
	"shortvid-pipeline/assemble"
	"shortvid-pipeline/config"
	"shortvid-pipeline/keyring"
	"shortvid-pipeline/logx"
	"shortvid-pipeline/music"
	"shortvid-pipeline/pipeline"
	"shortvid-pipeline/render"
	"shortvid-pipeline/scriptgen"
	"shortvid-pipeline/server"
	"shortvid-pipeline/stockmedia"
	"shortvid-pipeline/taskstore"
	"shortvid-pipeline/tts"
)

func main() {
	_ = godotenv.Load()
	log := logx.Setup(logx.FromEnv("shortvid"))

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		log.Fatal().Err(err).Msg("load secrets")
	}
	if err := os.MkdirAll(cfg.Paths.WorkDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("create work dir")
	}

	googleRing, err := keyring.New(secrets.GoogleKeys)
	if err != nil {
		log.Fatal().Err(err).Msg("google key pool")
	}
	pexelsRing, err := keyring.New(secrets.PexelsKeys)
	if err != nil {
		log.Fatal().Err(err).Msg("pexels key pool")
	}

	ctx := context.Background()
	videoGen, err := aivideo.New(ctx, secrets.VideoGenCredential, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("ai video credentials")
	}

	author := scriptgen.New(cfg, googleRing, secrets.OpenAIKey, log)
	speech := tts.New(cfg, googleRing, log)
	stock := stockmedia.New(cfg, pexelsRing, log)
	tracks := music.New(cfg, secrets.FreesoundKey, log)
	engine := render.New(cfg, log)
	assembler := assemble.New(cfg, speech, stock, videoGen, log)

	store := taskstore.NewMemory()
	orch := pipeline.New(cfg, store, author, assembler, engine, tracks, log)

	srv := server.New(cfg, store, orch, log)
	if err := srv.Run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
