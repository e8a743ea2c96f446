package uhdrbake_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vearutop/uhdrbake"
)

func ExampleIsUltraHDR() {
	f, err := os.Open(filepath.FromSlash("testdata/uhdr.jpg"))
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = uhdrbake.IsUltraHDR(f)
}

func ExampleBakeFile() {
	c := uhdrbake.NewNativeCodec(nil)
	pair, err := uhdrbake.ResolveBakeInputs(c, uhdrbake.ResolveRequest{
		Positional: []string{"IMG_0001.jpg", "IMG_0001_HDR.jpg"},
	})
	if err != nil {
		return
	}
	_, _ = uhdrbake.BakeFile(c, pair, "ultrahdr_bake_out.jpg", uhdrbake.DefaultBakeOptions())
}

func ExampleAssembleMotionPhotoFile() {
	pair, err := uhdrbake.ResolveMotionInputs(uhdrbake.MotionResolveRequest{
		Positional: []string{"IMG_0002.JPG"},
	})
	if err != nil {
		return
	}
	_, _ = uhdrbake.AssembleMotionPhotoFile(pair, "motionphoto.jpg", uhdrbake.MotionOptions{
		PresentationTimestampUs: 1500000,
	})
}

func ExampleBuildMotionXMP() {
	packet := uhdrbake.BuildMotionXMP(nil, uhdrbake.MotionMeta{
		PrimaryLen: 1024,
		VideoLen:   2048,
	}, uhdrbake.MergeReplaceDirectory)

	fmt.Println(bytes.Contains(packet, []byte(`Item:Semantic="MotionPhoto" Item:Length="2048"`)))
	// Output:
	// true
}

func ExampleBuildMPF() {
	mpf := uhdrbake.BuildMPF(100000, 20000, 99950)
	info, err := uhdrbake.ParseMPF(mpf)
	if err != nil {
		return
	}

	fmt.Println(len(mpf) == uhdrbake.MPFSize(), info.PrimarySize(), info.SecondarySize(), info.SecondaryOffset())
	// Output:
	// true 100000 20000 99950
}
