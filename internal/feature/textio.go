package feature

import (
	"bufio"
	"fmt"
	"os"
)

// WriteTextFile writes keypoints and descriptors to a text file:
//
//	LINE_0:            NUM_FEATURES DIM
//	LINE_1:            X Y SCALE ORIENTATION D_1 D_2 ... D_DIM
//	LINE_I:            ...
//	LINE_NUM_FEATURES: X Y SCALE ORIENTATION D_1 D_2 ... D_DIM
//
// where X, Y, SCALE, ORIENTATION are floating point and D_J are descriptor
// values in [0, 255].
func WriteTextFile(path string, keypoints []Keypoint, descriptors *Descriptors) error {
	if descriptors.Count() != len(keypoints) {
		return fmt.Errorf("keypoint/descriptor count mismatch: %d vs %d",
			len(keypoints), descriptors.Count())
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create feature file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "%d %d\n", len(keypoints), descriptors.Dim)

	for i, kp := range keypoints {
		fmt.Fprintf(w, "%g %g %g %g", kp.X, kp.Y, kp.Scale, kp.Orientation)
		for _, d := range descriptors.Row(i) {
			fmt.Fprintf(w, " %d", d)
		}
		fmt.Fprintln(w)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write feature file: %w", err)
	}
	return nil
}

// LoadTextFile loads keypoints and descriptors from the text format written
// by WriteTextFile. The returned keypoints and descriptor rows are
// index-aligned.
func LoadTextFile(path string) ([]Keypoint, *Descriptors, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open feature file: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)

	var numFeatures, dim int
	if _, err := fmt.Fscan(r, &numFeatures, &dim); err != nil {
		return nil, nil, fmt.Errorf("failed to read feature file header: %w", err)
	}
	if numFeatures < 0 || dim <= 0 {
		return nil, nil, fmt.Errorf("invalid feature file header: %d features, dim %d",
			numFeatures, dim)
	}

	keypoints := make([]Keypoint, numFeatures)
	descriptors := NewDescriptors(numFeatures, dim)

	for i := 0; i < numFeatures; i++ {
		kp := &keypoints[i]
		if _, err := fmt.Fscan(r, &kp.X, &kp.Y, &kp.Scale, &kp.Orientation); err != nil {
			return nil, nil, fmt.Errorf("failed to read keypoint %d: %w", i, err)
		}
		row := descriptors.Row(i)
		for j := 0; j < dim; j++ {
			var v int
			if _, err := fmt.Fscan(r, &v); err != nil {
				return nil, nil, fmt.Errorf("failed to read descriptor %d: %w", i, err)
			}
			if v < 0 || v > 255 {
				return nil, nil, fmt.Errorf("descriptor value %d out of [0, 255] at feature %d", v, i)
			}
			row[j] = uint8(v)
		}
	}

	return keypoints, descriptors, nil
}
