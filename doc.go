// Package portal is a client for content-addressed storage portals.
//
// Content is addressed by a [CID]: the BLAKE3 hash of the bytes plus their
// size. Uploads compute the CID locally and check it against what the
// portal reports. Downloads can be verified while they stream, so a reader
// never sees a byte the portal could have forged.
//
// # Quick Start
//
// Log in and upload a file:
//
//	c, err := portal.New("https://portal.example.com",
//	    portal.WithEmail("me@example.com"),
//	    portal.WithPassword(password),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := c.Login(ctx); err != nil {
//	    return err
//	}
//	id, err := c.UploadFile(ctx, "./video.mp4")
//
// Download it again, verified:
//
//	r, err := c.DownloadVerified(ctx, id)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	_, err = io.Copy(dst, r)
//
// # Uploads
//
// Content up to the portal's upload limit is sent in a single request.
// Larger content goes through a resumable transfer that survives network
// failures and, with [WithResumeDir], process restarts. Streams of unknown
// length are copied to a temporary file first so they can be hashed and
// resumed.
//
// # Public key accounts
//
// Accounts may authenticate with an ed25519 key instead of a password:
//
//	c, _ := portal.New(url, portal.WithEmail("me@example.com"))
//	_ = c.UseNewPubkeyAccount()
//	_ = c.Register(ctx)
//	_ = c.LoginPubkey(ctx)
package portal
