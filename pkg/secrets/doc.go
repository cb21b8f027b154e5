// Package secrets seals small records, such as cached tenant records carrying
// database credentials, before they leave the process.
//
// A Sealer holds one 32-byte application key. Every Seal and Open call names a
// scope (for example a tenant routing key); a key for that scope is derived
// with HKDF-SHA-256 and used with AES-256-GCM. The scope is also bound as
// additional data, so a ciphertext copied under another scope fails to open.
// The nonce is prepended to the ciphertext.
//
// # Usage
//
//	key, err := secrets.ParseKey(os.Getenv("TENANT_RECORD_CACHE_KEY"))
//	if err != nil {
//	    return err
//	}
//	s, err := secrets.NewSealer(key)
//	if err != nil {
//	    return err
//	}
//	sealed, err := s.Seal("acme.example.com", record)
//	plain, err := s.Open("acme.example.com", sealed)
//
// Failures wrap ErrInvalidKey, ErrSealFailed, ErrOpenFailed or
// ErrInvalidCiphertext; match them with errors.Is.
package secrets
