// Package modelscope implements generation.Provider against the ModelScope
// asynchronous image generation API.
package modelscope
