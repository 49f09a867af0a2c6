// Package signer signs built RPMs together with the sibling RPMs they depend on.
package signer
