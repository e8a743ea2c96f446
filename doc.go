// Package uhdrbake assembles composite media containers from still images and metadata
// without re-encoding the primary pixel data.
//
// Bake fuses the HDR intent of an UltraHDR (ISO 21496-1 gain map) JPEG with a separate SDR
// JPEG into a new UltraHDR JPEG whose base image is the SDR JPEG. AssembleMotionPhoto
// appends an MP4 clip to a JPEG (plain or UltraHDR) and writes the Motion Photo XMP
// directory, patching the MPF index when a gain map is present.
package uhdrbake
