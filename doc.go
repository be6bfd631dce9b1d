// Package lutcam provides a CPU camera effect pipeline: live frames are cover-fit into an output
// frame, then either color graded with a ".cube" 3D LUT or composited with a contain-fit overlay.
//
// A Session drives the pipeline continuously at preview resolution and renders one-shot exports at
// the source's native resolution through the same Pipeline.
package lutcam
