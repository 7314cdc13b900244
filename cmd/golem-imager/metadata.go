package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golemfactory/golem-imager/metadata"
	"github.com/spf13/cobra"
)

func newMetadataCmd(a *app) *cobra.Command {
	var (
		image    string
		hash     string
		cacheDir string
		noCache  bool
	)
	cmd := &cobra.Command{
		Use:   "metadata --image <image>",
		Short: "Calculate the uncompressed size and hash of an image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if hash == "" {
				h, err := metadata.FileHash(image)
				if err != nil {
					return err
				}
				hash = h
			}
			var cache *metadata.Cache
			if !noCache {
				c, err := openCache(cacheDir)
				if err != nil {
					return err
				}
				cache = c
				md, ok, err := cache.Load(hash)
				if err != nil {
					return err
				}
				if ok {
					return printMetadata(a, md)
				}
			}

			job := metadata.Start(image, nil, metadata.Options{CompressedHash: hash})
			done := watch(cmd.Context(), job.Cancel)
			defer done()
			r := &reporter{out: cmd.ErrOrStderr()}
			for p := range job.Progress() {
				r.report(p.Phase.String(), p.Overall(), p.Bytes)
			}
			md, err := job.Wait()
			if err != nil {
				return err
			}
			if cache != nil {
				if err := cache.Store(hash, md); err != nil {
					return err
				}
			}
			return printMetadata(a, md)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&image, "image", "i", "", "compressed image file")
	f.StringVar(&hash, "compressed-hash", "", "SHA-256 of the compressed file, calculated if empty")
	f.StringVar(&cacheDir, "cache-dir", "", "metadata cache directory")
	f.BoolVar(&noCache, "no-cache", false, "neither read nor store cached metadata")
	_ = cmd.MarkFlagRequired("image")
	cmd.AddCommand(newPruneCmd(a))
	return cmd
}

func newPruneCmd(a *app) *cobra.Command {
	var (
		cacheDir  string
		olderThan time.Duration
		images    string
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete cached metadata that is stale or whose image is gone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache, err := openCache(cacheDir)
			if err != nil {
				return err
			}
			removed := 0
			if images != "" {
				present, err := imageHashes(images)
				if err != nil {
					return err
				}
				n, err := cache.Cleanup(func(h string) bool { return present[h] })
				if err != nil {
					return err
				}
				removed += n
			}
			if olderThan > 0 {
				n, err := cache.Prune(olderThan, time.Now())
				if err != nil {
					return err
				}
				removed += n
			}
			_, err = fmt.Fprintf(a.out, "Removed %d cached entries\n", removed)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cacheDir, "cache-dir", "", "metadata cache directory")
	f.DurationVar(&olderThan, "older-than", 30*24*time.Hour, "remove entries unused for this long, 0 to keep all")
	f.StringVar(&images, "images", "", "directory of downloaded images; entries for images not in it are removed")
	return cmd
}

func openCache(dir string) (*metadata.Cache, error) {
	if dir == "" {
		d, err := metadata.DefaultCacheDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return metadata.NewCache(dir)
}

// imageHashes hashes every regular file in dir.
func imageHashes(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	hashes := map[string]bool{}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		h, err := metadata.FileHash(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		hashes[h] = true
	}
	return hashes, nil
}

func printMetadata(a *app, md metadata.ImageMetadata) error {
	b, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "%s\n", b)
	return err
}
