// Package ebitenwin shows device frames in a desktop window using ebiten.
//
// The ebiten game loop needs the main thread and runs once per process.
// main hands its goroutine to Run, which serves the loop while the host
// work runs elsewhere. The desktop window shows one device at a time: when
// the host closes that device the window stays up and the next OpenWindow
// resizes it for the new device. When the user closes the window the loop
// ends and a later OpenWindow fails with ErrUsed.
//
// Building with the headless tag drops the ebiten dependency and makes
// OpenWindow always fail, which lets servers and CI link the CLI without a
// display stack.
package ebitenwin
