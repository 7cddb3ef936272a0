package verifier

import "github.com/compose-network/verifier/x/batcher"

// Option configures the service dependencies.
type Option func(*deps)

type deps struct {
	signer    batcher.Signer
	nonces    NonceSource
	fees      FeeSource
	submitter Submitter
	confirmer Confirmer
}

// WithSigner sets the identity submissions are signed with.
func WithSigner(signer batcher.Signer) Option {
	return func(d *deps) {
		d.signer = signer
	}
}

// WithNonceSource sets the nonce sequencer.
func WithNonceSource(nonces NonceSource) Option {
	return func(d *deps) {
		d.nonces = nonces
	}
}

// WithFeeSource sets the fee estimator.
func WithFeeSource(fees FeeSource) Option {
	return func(d *deps) {
		d.fees = fees
	}
}

// WithSubmitter sets the batcher client.
func WithSubmitter(submitter Submitter) Option {
	return func(d *deps) {
		d.submitter = submitter
	}
}

// WithConfirmer sets the on-chain batch verifier. Required when
// await_onchain is enabled.
func WithConfirmer(confirmer Confirmer) Option {
	return func(d *deps) {
		d.confirmer = confirmer
	}
}
