// Command matchtest runs the full two-view pipeline on an image pair:
// extraction, descriptor matching, geometric verification, and optional
// guided re-matching.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"

	"sfm-features/internal/feature"
	"sfm-features/internal/imgio"
	"sfm-features/internal/match"
	"sfm-features/internal/sift"
	"sfm-features/internal/twoview"
	"sfm-features/internal/version"
)

func main() {
	path1 := flag.String("1", "", "Path to first image")
	path2 := flag.String("2", "", "Path to second image")
	optionsPath := flag.String("c", "", "Path to options JSON file (optional)")
	multiModel := flag.Bool("multi", false, "Try homography in addition to fundamental matrix")
	guided := flag.Bool("guided", false, "Run guided matching after verification")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("matchtest %s\n", version.String())
		return
	}

	if *path1 == "" || *path2 == "" {
		fmt.Println("Usage: matchtest -1 <image1> -2 <image2> [-c <options.json>] [-multi] [-guided]")
		os.Exit(1)
	}

	extOpts := feature.DefaultExtractionOptions()
	matchOpts := feature.DefaultMatchingOptions()
	if *optionsPath != "" {
		loaded, err := feature.LoadOptions(*optionsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load options: %v\n", err)
			os.Exit(1)
		}
		extOpts = loaded.Extraction
		matchOpts = loaded.Matching
	}
	matchOpts.MultipleModels = *multiModel
	matchOpts.GuidedMatching = *guided

	for _, path := range []string{*path1, *path2} {
		if !imgio.IsSupportedFormat(path) {
			fmt.Fprintf(os.Stderr, "Unsupported image format %q, want one of %v\n",
				path, imgio.SupportedFormats())
			os.Exit(1)
		}
	}

	img1, err := imgio.Load(*path1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *path1, err)
		os.Exit(1)
	}
	img2, err := imgio.Load(*path2)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *path2, err)
		os.Exit(1)
	}

	fmt.Printf("=== Extracting features ===\n")
	results, err := sift.ExtractBatch(context.Background(), []image.Image{img1, img2}, extOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
		os.Exit(1)
	}
	for i, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "Extraction failed for image %d: %v\n", i+1, r.Err)
			os.Exit(1)
		}
		fmt.Printf("Image %d: %d features\n", i+1, len(r.Keypoints))
	}

	fmt.Printf("\n=== Matching descriptors ===\n")
	matches, err := match.Match(results[0].Descriptors, results[1].Descriptors, matchOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Matching failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Candidate matches: %d\n", len(matches))

	fmt.Printf("\n=== Geometric verification ===\n")
	geom, err := twoview.Estimate(results[0].Keypoints, results[1].Keypoints, matches, matchOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Verification failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Model: %s, inliers: %d/%d, valid: %v\n",
		geom.Kind, geom.NumInliers, len(matches), geom.Valid)

	if !matchOpts.GuidedMatching || !geom.Valid {
		return
	}

	fmt.Printf("\n=== Guided matching ===\n")
	refined, updated, err := twoview.MatchGuided(geom,
		results[0].Keypoints, results[1].Keypoints,
		results[0].Descriptors, results[1].Descriptors, matchOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Guided matching failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Refined matches: %d, inliers: %d, valid: %v\n",
		len(refined), updated.NumInliers, updated.Valid)
}
