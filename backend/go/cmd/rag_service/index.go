package main

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/loaders"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/pipeline"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"time"
)

type indexOptions struct {
	configPath   string
	kb           string
	dir          string
	objectPrefix string
	dryRun       bool
}

func runIndex(ctx context.Context, w io.Writer, opts indexOptions) error {
	docs, skipped, err := loadDocuments(ctx, loaders.NewRegistry(), opts.dir, opts.objectPrefix)
	if err != nil {
		return err
	}
	for _, p := range skipped {
		fmt.Fprintf(w, "skipped %s\n", p)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no indexable files under %s", opts.dir)
	}

	cfg, err := loadConfig(opts.configPath, opts.dryRun)
	if err != nil {
		return err
	}
	if opts.dryRun {
		cfg.Search.Backend = "memory"
	}
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	log := logger.New(cfg.App.Name, "", "").WithField("component", "indexer")

	a := newApp(cfg, log)
	defer a.close()
	if err := a.buildIndex(ctx); err != nil {
		return err
	}

	indexer := pipeline.NewIndexingPipeline(a.chunkers, a.embedder, a.index, log)
	progress := make(chan pipeline.Progress)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for p := range progress {
			fmt.Fprintf(w, "[%3d%%] %s\n", p.Progress, p.Message)
		}
	}()

	res, err := indexer.Run(ctx, opts.kb, docs, progress)
	<-printed
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "indexed %d documents as %d chunks into %q\n", res.Documents, res.Chunks, opts.kb)
	return nil
}

// loadDocuments reads every file the registry can load under dir as one document.
// Paths are relative to dir with forward slashes; the title is the first "# "
// heading or the file name. A non-empty objectPrefix sets the object key for
// download links. Unsupported files are returned in skipped.
func loadDocuments(ctx context.Context, reg *loaders.Registry, dir, objectPrefix string) (docs []*schema.Document, skipped []string, err error) {
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		f, err := reg.Load(ctx, p)
		if errors.Is(err, loaders.ErrUnsupported) {
			skipped = append(skipped, rel)
			return nil
		}
		if err != nil {
			return err
		}

		meta := map[string]interface{}{
			schema.MetadataKeyTitle: titleOf(rel, f.Text),
			schema.MetadataKeyPath:  rel,
			schema.MetadataKeyType:  f.Type,
		}
		if !f.Modified.IsZero() {
			meta[schema.MetadataKeyModifiedAt] = f.Modified.UTC().Format(time.RFC3339)
		}
		if objectPrefix != "" {
			meta[schema.MetadataKeyObjectKey] = objectPrefix + rel
		}
		docs = append(docs, &schema.Document{Text: f.Text, Metadata: meta})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("read documents from %s: %w", dir, err)
	}
	return docs, skipped, nil
}

func titleOf(rel, text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
		break
	}
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}
