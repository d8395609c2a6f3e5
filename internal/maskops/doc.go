// Package maskops holds post-processing passes over 0/255 segmentation masks:
// morphology, feathering and island removal. All functions are pure and
// return new buffers.
package maskops
