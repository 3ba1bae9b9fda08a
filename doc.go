// Package sshmux multiplexes independently flow-controlled channels over one SSH connection.
//
// A Conn reads already decrypted binary packets from a Transport,
// and routes every channel-scoped message to the Channel it is addressed to.
// Each Channel exposes SendPacket and ReceivePacket as the only contract
// that higher protocols, such as exec, direct-tcpip, or SFTP, are built on.
//
// Key exchange, encryption, and authentication belong to the Transport,
// and are not handled here.
package sshmux
