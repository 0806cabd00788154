// Command vellum drives the book illustration pipeline: it analyzes a book
// into a shared manifest, renders an illustration per scene, and compiles
// the results into deliverable formats. Multiple vellum processes can share
// one workspace; the manifest coordinates them.
package main
