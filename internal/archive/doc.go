// Package archive writes raw webhook payloads to a gocloud blob bucket
package archive
