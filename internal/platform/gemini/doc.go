// Package gemini provides a generation.Provider backed by Google's Imagen
// models through the genai SDK.
//
// The SDK call is synchronous. ImageProvider runs it in the background and
// hands out a local job handle so it fits the submit/poll contract of the
// task engine.
package gemini
