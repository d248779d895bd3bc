// Command featuretest extracts features from a single image and prints a
// summary, optionally writing the keypoints and descriptors to a text
// file and reloading them to verify the round trip.
package main

import (
	"flag"
	"fmt"
	"os"

	"sfm-features/internal/accel"
	"sfm-features/internal/feature"
	"sfm-features/internal/imgio"
	"sfm-features/internal/sift"
	"sfm-features/internal/version"
)

func main() {
	input := flag.String("i", "", "Path to input image")
	output := flag.String("o", "", "Path to output feature text file (optional)")
	optionsPath := flag.String("c", "", "Path to options JSON file (optional)")
	useAccel := flag.Bool("accel", false, "Use the OpenCV-backed extractor")
	affine := flag.Bool("affine", false, "Estimate affine shapes")
	dsp := flag.Bool("dsp", false, "Enable domain-size pooling")
	upright := flag.Bool("upright", false, "Fix orientation to 0")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("featuretest %s\n", version.String())
		return
	}

	if *input == "" {
		fmt.Println("Usage: featuretest -i <image> [-o <features.txt>] [-c <options.json>] [-accel] [-affine] [-dsp] [-upright]")
		os.Exit(1)
	}

	opts := feature.DefaultExtractionOptions()
	if *optionsPath != "" {
		loaded, err := feature.LoadOptions(*optionsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load options: %v\n", err)
			os.Exit(1)
		}
		opts = loaded.Extraction
	}
	opts.EstimateAffineShape = *affine
	opts.DomainSizePooling = *dsp
	opts.Upright = *upright
	if err := opts.Check(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid options: %v\n", err)
		os.Exit(1)
	}

	if !imgio.IsSupportedFormat(*input) {
		fmt.Fprintf(os.Stderr, "Unsupported image format %q, want one of %v\n",
			*input, imgio.SupportedFormats())
		os.Exit(1)
	}

	img, err := imgio.Load(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}

	var keypoints []feature.Keypoint
	var descriptors *feature.Descriptors
	if *useAccel {
		extractor, err := accel.NewExtractor(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create accelerated extractor: %v\n", err)
			os.Exit(1)
		}
		defer extractor.Close()
		keypoints, descriptors, err = extractor.Extract(img)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		keypoints, descriptors, err = sift.Extract(img, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Extracted %d features\n", len(keypoints))
	for i, kp := range keypoints {
		if i >= 10 {
			fmt.Printf("  ... and %d more\n", len(keypoints)-10)
			break
		}
		fmt.Printf("  X=%7.1f Y=%7.1f scale=%6.2f orient=%5.2f\n",
			kp.X, kp.Y, kp.Scale, kp.Orientation)
	}

	if *output == "" {
		return
	}

	if err := feature.WriteTextFile(*output, keypoints, descriptors); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write features: %v\n", err)
		os.Exit(1)
	}
	reloaded, _, err := feature.LoadTextFile(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload features: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s (%d features, round trip ok)\n", *output, len(reloaded))
}
