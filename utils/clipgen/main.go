package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Eyevinn/videoplane/internal"
)

const (
	defaultDuration  = 2  // seconds
	defaultFrameRate = 30 // fps
	videoWidth       = 1280
	videoHeight      = 720
	outputDir        = "output"
	logDir           = "logs"
)

func main() {
	duration := flag.Int("duration", defaultDuration, "clip duration in seconds")
	frameRate := flag.Int("fps", defaultFrameRate, "frame rate")
	fragmented := flag.Bool("fragmented", false, "write a fragmented MP4")
	flag.Parse()

	// Create output directory if it doesn't exist
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	// Create logs directory if it doesn't exist
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Fatalf("Failed to create logs directory: %v", err)
	}

	outputFile := generateClip(*duration, *frameRate, *fragmented)
	printClipInfo(outputFile)
}

func generateClip(duration, frameRate int, fragmented bool) string {
	name := fmt.Sprintf("clip_%ds_%dfps.mp4", duration, frameRate)
	outputFile := filepath.Join(outputDir, name)
	logFile := filepath.Join(logDir, strings.TrimSuffix(name, ".mp4")+".log")
	fmt.Printf("Generating looping clip: %s\n", outputFile)

	logFileHandle, err := os.Create(logFile)
	if err != nil {
		log.Fatalf("Failed to create log file: %v", err)
	}
	defer logFileHandle.Close()

	movflags := "+faststart"
	if fragmented {
		movflags = "cmaf+separate_moof+delay_moov+skip_trailer+frag_every_frame"
	}

	// A moving test pattern with the frame counter makes loop wraps visible.
	cmdArgs := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("testsrc2=size=%dx%d:rate=%d:duration=%d", videoWidth, videoHeight, frameRate, duration),
		"-c:v", "libx264",
		"-preset", "medium",
		"-profile:v", "main",
		"-x264opts", fmt.Sprintf("keyint=%d:min-keyint=%d:scenecut=0:bframes=0:force-cfr=1", frameRate, frameRate),
		"-pix_fmt", "yuv420p",
		"-an",
		"-movflags", movflags,
		outputFile,
	}

	cmdString := "ffmpeg " + strings.Join(cmdArgs, " ")
	fmt.Println("Executing ffmpeg command:")
	fmt.Println(cmdString)

	_, _ = logFileHandle.WriteString("Command: " + cmdString + "\n\n")

	cmd := exec.Command("ffmpeg", cmdArgs...)
	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle

	if err := cmd.Run(); err != nil {
		log.Fatalf("Failed to generate clip: %v", err)
	}

	fmt.Printf("Clip generation completed. Log saved to: %s\n", logFile)
	return outputFile
}

func printClipInfo(filePath string) {
	fh, err := os.Open(filePath)
	if err != nil {
		fmt.Printf("Error opening %s: %v\n", filePath, err)
		return
	}
	defer fh.Close()

	info, err := internal.ProbeMedia(fh)
	if err != nil {
		fmt.Printf("Error probing %s: %v\n", filePath, err)
		return
	}
	fmt.Printf("\nClip: %s\n", filepath.Base(filePath))
	fmt.Printf("  Codec: %s %dx%d\n", info.Codec, info.Width, info.Height)
	fmt.Printf("  Frames: %d at %.2f fps\n", info.NrSamples, info.FrameRate())
	fmt.Printf("  Loop duration: %s\n", info.LoopDuration())
	fmt.Printf("  GOP length: %d\n", info.GopLength)
}
